package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/fatih/color"
)

// Simplified DTOs for the script
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type chatMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Tag    string `json:"tag"`
}

type session struct {
	ID         string                 `json:"id"`
	Form       map[string]interface{} `json:"form"`
	Messages   []chatMessage          `json:"messages"`
	Extracting bool                   `json:"extracting"`
}

type progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Percent   int `json:"percent"`
}

var script = []string{
	"Me llamo Ana Pérez, tengo una finca de 12 hectáreas en Tolima donde cultivo café y plátano.",
	"Regamos por goteo con agua de un pozo propio y usamos abono orgánico.",
	"¿cómo voy?",
	"sí",
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000/api/intake/v1", "intake API base URL")
	flag.Parse()

	color.Cyan("=== Intake Simulation Client ===")

	var created envelope[session]
	if err := call("POST", *baseURL+"/sessions", nil, &created); err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	sessionID := created.Data.ID
	color.Green("Session Created: %s", sessionID)
	seen := printNew(created.Data.Messages, 0)

	for _, text := range script {
		color.Yellow("\nUSER: %s", text)

		start := time.Now()
		var sent envelope[session]
		err := call("POST", *baseURL+"/sessions/"+sessionID+"/messages", map[string]string{"text": text}, &sent)
		if err != nil {
			color.Red("Error: %v", err)
			continue
		}
		fmt.Printf("(%v, %d fields filled)\n", time.Since(start).Round(time.Millisecond), len(sent.Data.Form))

		// Wait for background batches and delayed follow-ups.
		for {
			time.Sleep(2 * time.Second)
			var current envelope[session]
			if err := call("GET", *baseURL+"/sessions/"+sessionID, nil, &current); err != nil {
				color.Red("Error: %v", err)
				break
			}
			seen = printNew(current.Data.Messages, seen)
			if !current.Data.Extracting {
				break
			}
		}
	}

	var p envelope[progress]
	if err := call("GET", *baseURL+"/sessions/"+sessionID+"/progress", nil, &p); err != nil {
		log.Fatalf("Failed to get progress: %v", err)
	}
	color.Cyan("\nFinal progress: %d%% (%d/%d)", p.Data.Percent, p.Data.Completed, p.Data.Total)
}

func printNew(msgs []chatMessage, seen int) int {
	for _, m := range msgs[min(seen, len(msgs)):] {
		if m.Sender == "user" {
			continue
		}
		color.Green("BOT [%s]: %s", m.Tag, m.Text)
	}
	return len(msgs)
}

func call(method, url string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API Error %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
