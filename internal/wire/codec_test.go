package wire

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

// mockConn wraps a bytes.Buffer to implement net.Conn for testing, the
// same shape used for wire-level tests elsewhere in this codebase.
type mockConn struct {
	*bytes.Buffer
}

func (m *mockConn) Close() error                       { return nil }
func (m *mockConn) LocalAddr() net.Addr                { return nil }
func (m *mockConn) RemoteAddr() net.Addr               { return nil }
func (m *mockConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockConn) SetWriteDeadline(t time.Time) error { return nil }

func newMockConn() *mockConn { return &mockConn{Buffer: &bytes.Buffer{}} }

func TestReadMessage(t *testing.T) {
	buf := newMockConn()
	buf.WriteByte('Q')
	binary.Write(buf, binary.BigEndian, uint32(14))
	buf.WriteString("SELECT 1;")
	buf.WriteByte(0)

	c := NewConn(buf)
	msgType, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgQuery {
		t.Errorf("msgType = %c, want %c", msgType, MsgQuery)
	}
	if string(payload) != "SELECT 1;\x00" {
		t.Errorf("payload = %q, want %q", payload, "SELECT 1;\x00")
	}
}

func TestWriteMessageRoundTrip(t *testing.T) {
	buf := newMockConn()
	c := NewConn(buf)
	if err := c.WriteMessage(MsgParseComplete, nil); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	msgType, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgParseComplete {
		t.Errorf("msgType = %c, want %c", msgType, MsgParseComplete)
	}
	if len(payload) != 0 {
		t.Errorf("payload = %v, want empty", payload)
	}
}

func TestParseStartupParams(t *testing.T) {
	var payload bytes.Buffer
	binary.Write(&payload, binary.BigEndian, uint32(196608))
	payload.WriteString("user")
	payload.WriteByte(0)
	payload.WriteString("alice")
	payload.WriteByte(0)
	payload.WriteString("database")
	payload.WriteByte(0)
	payload.WriteString("mydb")
	payload.WriteByte(0)
	payload.WriteByte(0)

	var msg bytes.Buffer
	binary.Write(&msg, binary.BigEndian, uint32(4+payload.Len()))
	msg.Write(payload.Bytes())

	params := ParseStartupParams(msg.Bytes())
	if params["user"] != "alice" {
		t.Errorf("user = %q, want alice", params["user"])
	}
	if params["database"] != "mydb" {
		t.Errorf("database = %q, want mydb", params["database"])
	}
}

func TestEncodeRows_FieldRowArityMatch(t *testing.T) {
	fields := []FieldInfo{{Name: "a"}, {Name: "b"}}
	rows := []Row{
		{Text("1"), Text("2")},
		{Text("3"), nil},
	}
	encoded := EncodeRows(fields, rows, "SELECT 2")

	buf := newMockConn()
	buf.Write(encoded)
	c := NewConn(buf)

	msgType, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage (RowDescription) failed: %v", err)
	}
	if msgType != MsgRowDescription {
		t.Fatalf("first message = %c, want RowDescription", msgType)
	}
	count := binary.BigEndian.Uint16(payload[:2])
	if int(count) != len(fields) {
		t.Errorf("RowDescription field count = %d, want %d", count, len(fields))
	}

	for i := range rows {
		msgType, payload, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage (DataRow %d) failed: %v", i, err)
		}
		if msgType != MsgDataRow {
			t.Fatalf("row %d message = %c, want DataRow", i, msgType)
		}
		colCount := binary.BigEndian.Uint16(payload[:2])
		if int(colCount) != len(fields) {
			t.Errorf("row %d column count = %d, want %d", i, colCount, len(fields))
		}
	}

	msgType, _, err = c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage (CommandComplete) failed: %v", err)
	}
	if msgType != MsgCommandComplete {
		t.Errorf("last message = %c, want CommandComplete", msgType)
	}
}

func TestEncodeRows_NoFieldsOmitsRowDescription(t *testing.T) {
	encoded := EncodeRows(nil, nil, "OK")
	c := NewConn(&mockConn{Buffer: bytes.NewBuffer(encoded)})

	msgType, payload, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msgType != MsgCommandComplete {
		t.Errorf("msgType = %c, want CommandComplete (no RowDescription for tagged commands)", msgType)
	}
	if string(payload) != "OK\x00" {
		t.Errorf("payload = %q, want %q", payload, "OK\x00")
	}
}

func TestBuildErrorResponse(t *testing.T) {
	msg := BuildErrorResponse("ERROR", "42601", "syntax error")
	if !bytes.Contains(msg, []byte("42601")) {
		t.Errorf("ErrorResponse missing SQLSTATE code")
	}
	if !bytes.Contains(msg, []byte("syntax error")) {
		t.Errorf("ErrorResponse missing message text")
	}
}
