package server

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"
)

var auditHeader = []string{"id", "ts", "command", "nodeIds", "initiatedBy", "status", "result"}

// WriteAuditCSV writes every command as one CSV row, oldest first. Node ids
// are joined with "|".
func (s *Server) WriteAuditCSV(ctx context.Context, w io.Writer) error {
	cmds, err := s.ListCommands(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(auditHeader); err != nil {
		return err
	}
	for _, c := range cmds {
		rec := []string{
			c.ID,
			c.Timestamp.UTC().Format(time.RFC3339Nano),
			c.Command,
			strings.Join(c.NodeIDs, "|"),
			c.InitiatedBy,
			string(c.Status),
			c.Result,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
