package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/websocket"

	"ai-voice-gateway/internal/protocol"
)

// Interactive text client. Lines are sent as send_text; "/listen", "/upload
// <path>" and "/exit" map to the other actions.
func main() {
	serverURL := flag.String("server", "ws://localhost:8765/ws", "Gateway websocket URL")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverURL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev protocol.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("read: %v", err)
				}
				return
			}
			printEvent(ev)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		msg, err := toMessage(line)
		if err != nil {
			log.Print(err)
			continue
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Fatalf("failed to send: %v", err)
		}
		if line == "/exit" {
			break
		}
	}
	<-done
}

func toMessage(line string) (map[string]any, error) {
	switch {
	case line == "/listen":
		return map[string]any{"action": protocol.ActionStartListening}, nil
	case line == "/exit":
		return map[string]any{"action": protocol.ActionExit}, nil
	case strings.HasPrefix(line, "/upload "):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/upload "))
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// []byte marshals as base64, which the gateway accepts.
		return map[string]any{"action": protocol.ActionUploadFile, "filename": filepath.Base(path), "file_data": data}, nil
	default:
		return map[string]any{"action": protocol.ActionSendText, "text": line}, nil
	}
}

func printEvent(ev protocol.Event) {
	switch ev.Type {
	case protocol.TypeResponseChunk:
		fmt.Print(ev.TextValue())
	case protocol.TypeResponseComplete:
		fmt.Println()
	case protocol.TypePartialTranscription:
		fmt.Printf("\r… %s", ev.TextValue())
	case protocol.TypeTranscription:
		fmt.Printf("\r🎤 %s\n", ev.TextValue())
	case protocol.TypeFileUploaded:
		fmt.Printf("📄 %s: %s\n", ev.Filename, ev.Status)
	default:
		data, _ := json.Marshal(ev)
		fmt.Println(string(data))
	}
}
