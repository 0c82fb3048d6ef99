package main

import (
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"ai-voice-gateway/internal/protocol"
	"ai-voice-gateway/internal/service/capture"
)

// Stream audio in chunks to simulate real-time capture
const chunkInterval = 100 * time.Millisecond

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16-bit PCM mono)")
	serverURL := flag.String("server", "ws://localhost:8765/ws", "Gateway websocket URL")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	format, err := capture.ReadWAVHeader(f)
	if err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	log.Printf("WAV file: channels=%d sampleRate=%d bitsPerSample=%d",
		format.Channels, format.SampleRate, format.BitsPerSample)

	if format.SampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", format.SampleRate)
	}
	chunkSize := format.BytesPerSecond() / int(time.Second/chunkInterval)

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("Connected to %s", *serverURL)

	answered := make(chan struct{})
	go func() {
		defer close(answered)
		for {
			var ev protocol.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			switch ev.Type {
			case protocol.TypePartialTranscription:
				log.Printf("partial: %s", ev.TextValue())
			case protocol.TypeTranscription:
				log.Printf("final: %s", ev.TextValue())
			case protocol.TypeResponseComplete:
				log.Printf("response: %s", ev.TextValue())
				return
			case protocol.TypeError:
				log.Printf("error: %s", ev.Message)
				return
			case protocol.TypeStatus:
				log.Printf("status: %s", ev.Message)
				if ev.Message == protocol.StatusNoSpeech {
					return
				}
			}
		}
	}()

	if err := conn.WriteJSON(map[string]string{"action": protocol.ActionStartListening}); err != nil {
		log.Fatalf("Failed to start listening: %v", err)
	}

	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := io.ReadFull(f, chunk)
		if n > 0 {
			chunkNum++
			totalBytes += int64(n)
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk[:n]); err != nil {
				log.Fatalf("Failed to send frame: %v", err)
			}
			if chunkNum%10 == 0 {
				log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
			}
			time.Sleep(chunkInterval)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}
	}

	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, time.Since(startTime))

	select {
	case <-answered:
	case <-time.After(60 * time.Second):
		log.Print("Timed out waiting for a response")
	}
	_ = conn.WriteJSON(map[string]string{"action": protocol.ActionExit})
}
