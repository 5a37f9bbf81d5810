package models

import "time"

type CommandStatus string

// CommandQueued is the only status a command ever reaches; completion is
// not tracked.
const CommandQueued CommandStatus = "queued"

// Command is an operator request fanned out to one or more nodes.
type Command struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"ts"`
	NodeIDs     []string       `json:"nodeIds"`
	Command     string         `json:"command"`
	Params      map[string]any `json:"params"`
	InitiatedBy string         `json:"initiatedBy"`
	Status      CommandStatus  `json:"status"`
	Result      string         `json:"result,omitempty"`
}

// RelayMessage is the payload published to a node's relay subject.
type RelayMessage struct {
	CommandID   string         `json:"cmdId"`
	Command     string         `json:"command"`
	Params      map[string]any `json:"params"`
	Timestamp   time.Time      `json:"ts"`
	InitiatedBy string         `json:"initiatedBy"`
	Target      string         `json:"target"`
}
