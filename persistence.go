package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
)

type clientIDFile struct {
	ClientID string `json:"client_id"`
}

// GetOrCreateClientID returns the persistent gateway identity, creating
// and storing a fresh one on first run. The identity survives restarts
// so the broker sees a stable client.
func GetOrCreateClientID(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		var f clientIDFile
		if err := json.Unmarshal(data, &f); err == nil && f.ClientID != "" {
			return f.ClientID
		}
		log.Printf("Persistence: ignoring unreadable id file %s", path)
	}

	id := fmt.Sprintf("signalduino-%s", uuid.New().String())
	data, _ := json.MarshalIndent(clientIDFile{ClientID: id}, "", "  ")
	if err := os.WriteFile(path, data, 0600); err != nil {
		log.Printf("Persistence: could not store client id in %s: %v", path, err)
	} else {
		log.Printf("Persistence: generated new client id %s", id)
	}
	return id
}
