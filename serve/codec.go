package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	inkling "github.com/Paranoid-AF/inkling"
)

// maxLineSize bounds one JSON event. Open and change events carry whole
// documents.
const maxLineSize = 16 << 20

// Codecs.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// codec reads events from and writes messages to one connection. Encode is
// safe for concurrent use; suggestions are sent from fetch goroutines.
type codec interface {
	Decode(ev *inkling.Event) error
	Encode(msg *inkling.Message) error
}

func checkCodec(name string) error {
	switch name {
	case "", CodecJSON, CodecMsgpack:
		return nil
	}
	return fmt.Errorf("unknown codec %q", name)
}

func newCodec(name string, rw io.ReadWriter) (codec, error) {
	switch name {
	case "", CodecJSON:
		scanner := bufio.NewScanner(rw)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		return &jsonCodec{scanner: scanner, w: rw}, nil
	case CodecMsgpack:
		dec := msgpack.NewDecoder(rw)
		dec.SetCustomStructTag("json")
		enc := msgpack.NewEncoder(rw)
		enc.SetCustomStructTag("json")
		return &msgpackCodec{dec: dec, enc: enc}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// jsonCodec speaks newline-delimited JSON.
type jsonCodec struct {
	scanner *bufio.Scanner

	mu sync.Mutex
	w  io.Writer
}

func (c *jsonCodec) Decode(ev *inkling.Event) error {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	*ev = inkling.Event{}
	if err := json.Unmarshal(c.scanner.Bytes(), ev); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func (c *jsonCodec) Encode(msg *inkling.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(append(data, '\n'))
	return err
}

// msgpackCodec speaks a stream of MessagePack maps keyed like the JSON
// protocol.
type msgpackCodec struct {
	dec *msgpack.Decoder

	mu  sync.Mutex
	enc *msgpack.Encoder
}

// Decode reads one whole value before decoding it, so an event of the
// wrong shape is skipped and the stream stays in sync.
func (c *msgpackCodec) Decode(ev *inkling.Event) error {
	raw, err := c.dec.DecodeRaw()
	if err != nil {
		return err
	}
	*ev = inkling.Event{}
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(ev); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

func (c *msgpackCodec) Encode(msg *inkling.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(msg)
}

// decodeError is a malformed event on an otherwise healthy connection.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "invalid event: " + e.err.Error() }

func (e *decodeError) Unwrap() error { return e.err }
