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
	"bytes"
	"strings"
	"testing"
)

func TestReadCommands(t *testing.T) {
	in := strings.NewReader("WR 50 02 01 02\nRD 50 10\nRST\n")
	p := NewProtocol(in, &bytes.Buffer{})

	cmd, err := p.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if cmd.Type != CmdWrite || cmd.Addr != 0x50 || !bytes.Equal(cmd.Data, []byte{0x01, 0x02}) {
		t.Errorf("parsed WR as %+v", cmd)
	}

	cmd, err = p.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if cmd.Type != CmdRead || cmd.Addr != 0x50 || cmd.Count != 0x10 {
		t.Errorf("parsed RD as %+v", cmd)
	}

	cmd, err = p.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if cmd.Type != CmdReset {
		t.Errorf("parsed RST as %+v", cmd)
	}
}

func TestReadRejectsBadInput(t *testing.T) {
	for _, in := range []string{
		"XX\n",          // unknown command
		"WR FF 01 00\n", // address out of the 7-bit range
		"WR 50 02 0\n",  // odd hex digits
		"RD 50 zz\n",    // not a number
	} {
		p := NewProtocol(strings.NewReader(in), &bytes.Buffer{})
		if _, err := p.Read(); err == nil {
			t.Errorf("Read accepted %q", in)
		}
	}
}

func TestWriteData(t *testing.T) {
	var out bytes.Buffer
	p := NewProtocol(strings.NewReader(""), &out)

	p.WriteData([]byte{0xDE, 0xAD, 0xBE, 0xEF})

	want := "DAT 04\nDEADBEEF\n"
	if out.String() != want {
		t.Errorf("WriteData produced %q, want %q", out.String(), want)
	}
}
