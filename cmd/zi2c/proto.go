// Copyright (c) 2020 omSquare s.r.o.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"io"
	"strconv"
)

const (
	CmdReset = iota
	CmdWrite
	CmdRead
)

const lineWidth = 32 // number of bytes per response data line

var hex = [...]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'A', 'B', 'C', 'D', 'E', 'F'}

// Protocol is the text command protocol spoken on stdin/stdout:
//
//	WR <addr> <len> <data...>   write data bytes to a device
//	RD <addr> <len>             read bytes from a device
//	RST                         release the bus
//
// All numbers are hexadecimal. Responses are OK, NAK or DAT <len>
// followed by data lines.
type Protocol struct {
	r   io.Reader
	w   io.Writer
	buf []byte
	pos int
	n   int
}

// Command is one parsed protocol command.
type Command struct {
	Type  int
	Addr  uint8
	Data  []byte
	Count int
}

type ProtocolError struct{}

func (ProtocolError) Error() string {
	return "protocol violation"
}

func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	return &Protocol{
		r:   r,
		w:   w,
		buf: make([]byte, 1024),
	}
}

func (p *Protocol) WriteVersion(ver string) {
	fmt.Fprintf(p.w, "ZI2C %v\n", ver)
}

func (p *Protocol) WriteOK() {
	fmt.Fprint(p.w, "OK\n")
}

// WriteNak reports a transaction that exhausted its retries.
func (p *Protocol) WriteNak() {
	fmt.Fprint(p.w, "NAK\n")
}

// WriteData outputs the "DAT" response with the bytes of a read.
func (p *Protocol) WriteData(data []byte) {
	fmt.Fprintf(p.w, "DAT %02X\n", len(data))
	var line [lineWidth*2 + 1]byte

	for i := 0; i < len(data); {
		l := i + lineWidth
		if l > len(data) {
			l = len(data)
		}

		k := 0
		for j := i; j < l; j++ {
			b := data[j]
			line[k] = hex[b/16]
			line[k+1] = hex[b%16]
			k += 2
		}

		line[k] = '\n'
		p.w.Write(line[:k+1])
		i = l
	}
}

// Read reads the next command from the protocol input.
func (p *Protocol) Read() (Command, error) {
	// read command token first
	cmd, err := p.nextToken()
	if err != nil {
		return Command{}, err
	}

	switch cmd {
	case "RST":
		return Command{Type: CmdReset}, nil

	case "WR":
		return p.readWrite()

	case "RD":
		return p.readRead()

	default:
		return Command{}, ProtocolError{}
	}
}

func (p *Protocol) readWrite() (Command, error) {
	addr, err := p.nextByte()
	if err != nil || addr > 0x7F {
		return Command{}, ProtocolError{}
	}

	n, err := p.nextByte()
	if err != nil {
		return Command{}, ProtocolError{}
	}

	// read data
	data := make([]byte, n)
	for i := 0; i < len(data); {
		tok, err := p.nextToken()
		if err != nil || len(tok)%2 == 1 || i+len(tok)/2 > len(data) {
			return Command{}, ProtocolError{}
		}

		for j := 0; j < len(tok); j += 2 {
			h := hexDigit(tok[j])
			l := hexDigit(tok[j+1])

			if h < 0 || l < 0 {
				return Command{}, ProtocolError{}
			}

			data[i] = uint8(16*h + l)
			i++
		}
	}

	return Command{Type: CmdWrite, Addr: addr, Data: data}, nil
}

func (p *Protocol) readRead() (Command, error) {
	addr, err := p.nextByte()
	if err != nil || addr > 0x7F {
		return Command{}, ProtocolError{}
	}

	n, err := p.nextByte()
	if err != nil {
		return Command{}, ProtocolError{}
	}

	return Command{Type: CmdRead, Addr: addr, Count: int(n)}, nil
}

func (p *Protocol) nextByte() (uint8, error) {
	tok, err := p.nextToken()
	if err != nil {
		return 0, ProtocolError{}
	}

	n, err := strconv.ParseUint(tok, 16, 8)
	if err != nil {
		return 0, ProtocolError{}
	}

	return uint8(n), nil
}

func (p *Protocol) nextToken() (string, error) {
	var tok [32]byte
	var i int

	for {
		// skip leading whitespace
		for p.pos < p.n && isSpace(p.buf[p.pos]) {
			p.pos++
		}

		// read token characters
		for p.pos < p.n && i < len(tok) && !isSpace(p.buf[p.pos]) {
			tok[i] = p.buf[p.pos]
			i++
			p.pos++
		}

		// re-read buffer if needed
		if p.pos == p.n {
			var err error

			p.pos = 0
			p.n, err = p.r.Read(p.buf)

			if p.n == 0 {
				return "", err
			}
		} else {
			break
		}
	}

	return string(tok[:i]), nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\v' || ch == '\f'
}

func hexDigit(ch byte) int {
	if ch >= '0' && ch <= '9' {
		return int(ch - '0')
	}

	if ch >= 'A' && ch <= 'F' {
		return int(ch-'A') + 10
	}

	return -1
}
