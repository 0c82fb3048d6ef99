package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Actions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Inbound
	}{
		{name: "start listening", in: `{"action":"start_listening"}`, want: StartListening{}},
		{name: "send text", in: `{"action":"send_text","text":"hello"}`, want: SendText{Text: "hello"}},
		{name: "send empty text", in: `{"action":"send_text","text":"   "}`, want: SendText{Text: "   "}},
		{name: "exit", in: `{"action":"exit"}`, want: Exit{}},
		{
			name: "upload base64",
			in:   `{"action":"upload_file","filename":"notes.txt","file_data":"aGVsbG8="}`,
			want: UploadFile{Filename: "notes.txt", FileData: []byte("hello")},
		},
		{
			name: "upload byte array",
			in:   `{"action":"upload_file","filename":"notes.txt","file_data":[104,105]}`,
			want: UploadFile{Filename: "notes.txt", FileData: []byte("hi")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind ErrorKind
	}{
		{name: "not json", in: `{action`, kind: KindMalformed},
		{name: "not an object", in: `[1,2]`, kind: KindMalformed},
		{name: "missing action", in: `{"text":"hi"}`, kind: KindMissingField},
		{name: "unknown action", in: `{"action":"dance"}`, kind: KindUnknownAction},
		{name: "send text without text", in: `{"action":"send_text"}`, kind: KindMissingField},
		{name: "upload without filename", in: `{"action":"upload_file","file_data":"aGk="}`, kind: KindMissingField},
		{name: "upload without data", in: `{"action":"upload_file","filename":"a.txt"}`, kind: KindMissingField},
		{name: "upload bad data", in: `{"action":"upload_file","filename":"a.txt","file_data":"***"}`, kind: KindInvalidField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, tt.kind, ErrorKindOf(err))
		})
	}
}

func TestEvent_Marshal(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{name: "status", ev: Status("hi"), want: `{"type":"status","message":"hi"}`},
		{name: "chunk", ev: ResponseChunk("Hi"), want: `{"type":"response_chunk","text":"Hi","complete":false}`},
		{name: "empty complete", ev: ResponseComplete(""), want: `{"type":"response_complete","text":"","complete":true}`},
		{name: "transcription", ev: Transcription("b", "a b"), want: `{"type":"transcription","text":"b","full_text":"a b"}`},
		{name: "partial", ev: PartialTranscription("a"), want: `{"type":"partial_transcription","text":"a"}`},
		{name: "uploaded", ev: FileUploaded("a.txt", "success"), want: `{"type":"file_uploaded","filename":"a.txt","status":"success"}`},
		{name: "error", ev: Error("Empty text input"), want: `{"type":"error","message":"Empty text input"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.ev.Marshal()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			var round Event
			require.NoError(t, json.Unmarshal(data, &round))
			assert.Equal(t, tt.ev.Type, round.Type)
		})
	}
}
