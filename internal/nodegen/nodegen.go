// Package nodegen synthesizes a plausible fleet of feeder nodes clustered
// around fixed city centers.
package nodegen

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/devghori1264/feederbalancer/internal/models"
)

const feederCount = 8

type center struct {
	lat, lon float64
	district string
}

var cityCenters = map[string]center{
	"Kannur":             {11.8745, 75.3704, "Kannur"},
	"Kozhikode":          {11.2588, 75.7804, "Kozhikode"},
	"Thrissur":           {10.5276, 76.2144, "Thrissur"},
	"Kochi":              {9.9312, 76.2673, "Ernakulam"},
	"Ernakulam":          {9.9658, 76.2413, "Ernakulam"},
	"Alappuzha":          {9.4981, 76.3388, "Alappuzha"},
	"Kollam":             {8.8932, 76.6141, "Kollam"},
	"Thiruvananthapuram": {8.5241, 76.9366, "Thiruvananthapuram"},
	"Munnar":             {10.0889, 77.0595, "Idukki"},
	"Guruvayur":          {10.594, 76.0413, "Thrissur"},
}

// CityQuota is the number of nodes placed around one city.
type CityQuota struct {
	City  string
	Count int
}

// Distribution is the fixed generation order.
var Distribution = []CityQuota{
	{"Kannur", 3},
	{"Kozhikode", 2},
	{"Thrissur", 3},
	{"Kochi", 4},
	{"Ernakulam", 5},
	{"Alappuzha", 3},
	{"Kollam", 4},
	{"Thiruvananthapuram", 5},
	{"Munnar", 2},
	{"Guruvayur", 2},
}

// Capacity is the largest fleet Generate can produce.
func Capacity() int {
	total := 0
	for _, q := range Distribution {
		total += q.Count
	}
	return total
}

// Generator builds fleets from an injectable random source and clock.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

func New(rnd *rand.Rand, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rnd: rnd, now: now}
}

// Generate returns up to count nodes, stopping early when the city list is
// exhausted. Identifiers are ND-001, ND-002, ... in generation order.
func (g *Generator) Generate(count int, scatterDeg float64) []models.Node {
	nodes := make([]models.Node, 0, min(count, Capacity()))
	idx := 1
	for _, q := range Distribution {
		if len(nodes) >= count {
			break
		}
		c, ok := cityCenters[q.City]
		if !ok {
			continue
		}
		for i := 0; i < q.Count && len(nodes) < count; i++ {
			nodes = append(nodes, g.node(idx, i+1, q.City, c, scatterDeg))
			idx++
		}
	}
	return nodes
}

func (g *Generator) node(idx, ordinal int, city string, c center, scatterDeg float64) models.Node {
	// longitude spread is deliberately 1.2x wider than latitude
	jitterLat := (g.rnd.Float64() - 0.5) * scatterDeg
	jitterLon := (g.rnd.Float64() - 0.5) * (scatterDeg * 1.2)
	vuf := round(g.rnd.Float64()*4, 2)

	mode := models.ModeManual
	if g.rnd.Float64() > 0.5 {
		mode = models.ModeAuto
	}

	age := time.Duration(g.rnd.IntN(3601)) * time.Second
	return models.Node{
		ID:       fmt.Sprintf("ND-%03d", idx),
		Name:     fmt.Sprintf("%s Node %d", city, ordinal),
		Lat:      round(c.lat+jitterLat, 5),
		Lon:      round(c.lon+jitterLon, 5),
		Status:   models.StatusForVUF(vuf),
		VUF:      vuf,
		Feeder:   fmt.Sprintf("Feeder-%d", (idx-1)%feederCount+1),
		District: c.district,
		Mode:     mode,
		LastTelemetry: &models.TelemetryPoint{
			Timestamp:      g.now().UTC().Add(-age),
			VUF:            vuf,
			VA:             220 + g.rnd.IntN(16),
			VB:             220 + g.rnd.IntN(16),
			VC:             220 + g.rnd.IntN(16),
			NeutralCurrent: float64(g.rnd.IntN(40)),
		},
	}
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
