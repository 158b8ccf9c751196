// Copyright 2025 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gobmsg

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/thediveo/fdpass/uds"
)

// blocksize is the maximum size of a single encoded message.
const blocksize = 8192

// Encoder encodes values into self-contained gob messages of at most
// blocksize bytes.
//
// A gob stream only describes each type once, so a peer missing a single
// message of a stream wouldn't be able to decode any later message of the
// same type. Instead, each message starts its own gob stream, carrying the
// descriptions of all the types it needs. Rejecting or losing a message thus
// never affects the messages that follow.
type Encoder struct {
	buff bytes.Buffer
}

// NewEncoder returns a new encoder that maintains an internal buffer to encode
// into.
func NewEncoder() *Encoder {
	enc := &Encoder{}
	enc.buff.Grow(blocksize)
	return enc
}

// Encode the passed value into a self-contained gob message and return it as a
// byte slice. The returned slice becomes invalid at the next call to Encode.
// Encode returns an error wrapping [uds.ErrInvalidArgument] if the message
// would exceed the block size.
func (e *Encoder) Encode(v any) ([]byte, error) {
	e.buff.Reset()
	if err := gob.NewEncoder(&e.buff).Encode(v); err != nil {
		return nil, err
	}
	if e.buff.Len() > blocksize {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds maximum of %d bytes",
			uds.ErrInvalidArgument, e.buff.Len(), blocksize)
	}
	return e.buff.Bytes(), nil
}

// Decoder decodes self-contained gob messages, as produced by an [Encoder].
type Decoder struct {
	buff []byte
	r    bytes.Reader
}

// NewDecoder returns a new decoder that maintains an internal buffer to receive
// messages into, and to decode from.
func NewDecoder() *Decoder {
	return &Decoder{buff: make([]byte, blocksize)}
}

// Buffer returns a buffer slice to be used for receiving a message.
func (d *Decoder) Buffer() []byte {
	return d.buff
}

// Decode decodes the message stored in the first n bytes of the decoder's
// buffer into v. First, receive a message into the slice provided by
// [Decoder.Buffer], also determining its size. Then call Decode with this
// size.
func (d *Decoder) Decode(n int, v any) error {
	d.r.Reset(d.buff[:n])
	if err := gob.NewDecoder(&d.r).Decode(v); err != nil {
		return err
	}
	if d.r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes after gob message",
			uds.ErrProtocol, d.r.Len())
	}
	return nil
}
