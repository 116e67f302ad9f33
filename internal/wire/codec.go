// Package wire implements Postgres frontend/backend protocol v3 framing
// (§4.A) and the text-format row encoding used to answer queries
// (§3 "Row", §4.F "Row encoding").
//
// Hand-rolls the same length-prefixed framing
// (readMessage/writeMessage/encodeMessage) rather than reaching for a
// wire-protocol library, generalized from "proxy bytes to a real
// Postgres backend" to "proxy bytes to a supplier-produced result set".
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// Backend/frontend message type bytes actually used by this façade
// (§4.A).
const (
	MsgQuery                = 'Q'
	MsgParse                = 'P'
	MsgBind                 = 'B'
	MsgExecute              = 'E'
	MsgDescribe             = 'D'
	MsgClose                = 'C'
	MsgSync                 = 'S'
	MsgTerminate            = 'X'
	MsgPasswordMessage      = 'p'

	MsgReadyForQuery        = 'Z'
	MsgCommandComplete      = 'C'
	MsgRowDescription       = 'T'
	MsgDataRow              = 'D'
	MsgErrorResponse        = 'E'
	MsgAuthentication       = 'R'
	MsgParameterStatus      = 'S'
	MsgBackendKeyData       = 'K'
	MsgParseComplete        = '1'
	MsgBindComplete         = '2'
	MsgCloseComplete        = '3'
	MsgNoData               = 'n'
	MsgParameterDescription = 't'
	MsgEmptyQueryResponse   = 'I'
)

// TextOID is the Postgres OID for the `text` pseudo-type. Every column
// this façade emits is sent in text format (§3), so unless a
// supplier's schema step resolves a more specific OID this is the
// default.
const TextOID = 25

// FieldInfo describes one column of a result set (§3 "Column
// metadata" projected onto the wire RowDescription).
type FieldInfo struct {
	Name string
	OID  uint32
}

// Row is a homogeneous vector of nullable text cells (§3 "Row").
// A nil entry encodes SQL NULL.
type Row []*string

// Text wraps a Go value as a non-null text cell.
func Text(v string) *string { return &v }

// Conn wraps a net.Conn with the framing primitives the façade's
// session and dispatcher layers need.
type Conn struct {
	net.Conn
}

func NewConn(c net.Conn) *Conn { return &Conn{Conn: c} }

// ReadStartupMessage reads the special length-prefixed, type-byte-less
// message that opens every connection (StartupMessage or SSLRequest).
func (c *Conn) ReadStartupMessage() ([]byte, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(c, lengthBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length < 4 || length > 1<<20 {
		return nil, fmt.Errorf("malformed startup message length %d", length)
	}
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(c, payload); err != nil {
		return nil, err
	}
	return append(lengthBuf, payload...), nil
}

// ReadMessage reads one type-byte + length-prefixed protocol message.
func (c *Conn) ReadMessage() (byte, []byte, error) {
	typeBuf := make([]byte, 1)
	if _, err := io.ReadFull(c, typeBuf); err != nil {
		return 0, nil, err
	}
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(c, lengthBuf); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length < 4 || length > 1<<24 {
		return 0, nil, fmt.Errorf("malformed message length %d for type %c", length, typeBuf[0])
	}
	payload := make([]byte, length-4)
	if _, err := io.ReadFull(c, payload); err != nil {
		return 0, nil, err
	}
	return typeBuf[0], payload, nil
}

// WriteMessage writes one type-byte + length-prefixed protocol message.
func (c *Conn) WriteMessage(msgType byte, payload []byte) error {
	_, err := c.Write(EncodeMessage(msgType, payload))
	return err
}

// EncodeMessage builds the raw bytes of one protocol message without
// sending it, for callers that batch several messages into one write
// (§4.F: a query response is RowDescription+DataRow*+CommandComplete
// sent together).
func EncodeMessage(msgType byte, payload []byte) []byte {
	length := uint32(len(payload) + 4)
	msg := make([]byte, 1+4+len(payload))
	msg[0] = msgType
	binary.BigEndian.PutUint32(msg[1:5], length)
	copy(msg[5:], payload)
	return msg
}

// ParseStartupParams extracts the null-terminated key/value parameters
// of a StartupMessage (protocol version + user/database/etc.).
func ParseStartupParams(msg []byte) map[string]string {
	params := make(map[string]string)
	if len(msg) < 8 {
		return params
	}
	data := msg[8:] // skip length + protocol version
	for len(data) > 0 {
		keyEnd := bytes.IndexByte(data, 0)
		if keyEnd <= 0 {
			break
		}
		key := string(data[:keyEnd])
		data = data[keyEnd+1:]

		valEnd := bytes.IndexByte(data, 0)
		if valEnd < 0 {
			break
		}
		params[key] = string(data[:valEnd])
		data = data[valEnd+1:]
	}
	return params
}

// BuildRowDescription encodes a complete RowDescription message for the
// given field list.
func BuildRowDescription(fields []FieldInfo) []byte {
	var buf bytes.Buffer
	count := make([]byte, 2)
	binary.BigEndian.PutUint16(count, uint16(len(fields)))
	buf.Write(count)

	for _, f := range fields {
		buf.WriteString(f.Name)
		buf.WriteByte(0)
		buf.Write([]byte{0, 0, 0, 0}) // table OID: none
		buf.Write([]byte{0, 0})       // column attr number: none
		oid := f.OID
		if oid == 0 {
			oid = TextOID
		}
		oidBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(oidBytes, oid)
		buf.Write(oidBytes)
		buf.Write([]byte{255, 255})           // type size: variable
		buf.Write([]byte{255, 255, 255, 255}) // type modifier: none
		buf.Write([]byte{0, 0})               // format code: text
	}
	return EncodeMessage(MsgRowDescription, buf.Bytes())
}

// BuildDataRow encodes one complete DataRow message. A nil cell encodes
// SQL NULL per §3.
func BuildDataRow(row Row) []byte {
	var buf bytes.Buffer
	count := make([]byte, 2)
	binary.BigEndian.PutUint16(count, uint16(len(row)))
	buf.Write(count)

	for _, cell := range row {
		if cell == nil {
			buf.Write([]byte{255, 255, 255, 255})
			continue
		}
		lenBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(lenBytes, uint32(len(*cell)))
		buf.Write(lenBytes)
		buf.WriteString(*cell)
	}
	return EncodeMessage(MsgDataRow, buf.Bytes())
}

// BuildCommandComplete encodes a complete CommandComplete message.
func BuildCommandComplete(tag string) []byte {
	return EncodeMessage(MsgCommandComplete, append([]byte(tag), 0))
}

// BuildParameterStatus encodes a complete ParameterStatus message.
func BuildParameterStatus(name, value string) []byte {
	payload := append([]byte(name), 0)
	payload = append(payload, []byte(value)...)
	payload = append(payload, 0)
	return EncodeMessage(MsgParameterStatus, payload)
}

// BuildErrorResponse encodes a complete ErrorResponse message with
// severity, code and message fields (the three this façade ever sets).
func BuildErrorResponse(severity, code, message string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('S')
	buf.WriteString(severity)
	buf.WriteByte(0)
	buf.WriteByte('C')
	buf.WriteString(code)
	buf.WriteByte(0)
	buf.WriteByte('M')
	buf.WriteString(message)
	buf.WriteByte(0)
	buf.WriteByte(0)
	return EncodeMessage(MsgErrorResponse, buf.Bytes())
}

// EncodeRows glues RowDescription + DataRow* + CommandComplete into one
// buffer, the shape every successful query response takes (§4.F).
func EncodeRows(fields []FieldInfo, rows []Row, tag string) []byte {
	var buf bytes.Buffer
	if len(fields) > 0 {
		buf.Write(BuildRowDescription(fields))
	}
	for _, r := range rows {
		buf.Write(BuildDataRow(r))
	}
	buf.Write(BuildCommandComplete(tag))
	return buf.Bytes()
}
