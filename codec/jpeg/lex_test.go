/*
DESCRIPTION
  lex_test.go provides testing for splitting image streams with Lex.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package jpeg

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
)

var fullInput = []byte{
	0xff, 0xd8, 'f', 'u', 'l', 'l', 0xff, 0xd9,
	0xff, 0xd8, 'f', 'r', 'a', 'm', 'e', 0xff, 0xd9,
	0xff, 0xd8, 'w', 'i', 't', 'h', 0xff, 0xd9,
	0xff, 0xd8, 'l', 'e', 'n', 'g', 't', 'h', 0xff, 0xd9,
	0xff, 0xd8, 's', 'p', 'r', 'e', 'a', 'd', 0xff, 0xd9,
}

var fullWant = [][]byte{
	{0xff, 0xd8, 'f', 'u', 'l', 'l', 0xff, 0xd9},
	{0xff, 0xd8, 'f', 'r', 'a', 'm', 'e', 0xff, 0xd9},
	{0xff, 0xd8, 'w', 'i', 't', 'h', 0xff, 0xd9},
	{0xff, 0xd8, 'l', 'e', 'n', 'g', 't', 'h', 0xff, 0xd9},
	{0xff, 0xd8, 's', 'p', 'r', 'e', 'a', 'd', 0xff, 0xd9},
}

var jpegTests = []struct {
	name  string
	input []byte
	delay time.Duration
	want  [][]byte
	err   error
}{
	{
		name: "empty",
		err:  io.EOF,
	},
	{
		name:  "null",
		input: []byte{0xff, 0xd8, 0xff, 0xd9},
		delay: 0,
		want:  [][]byte{{0xff, 0xd8, 0xff, 0xd9}},
		err:   io.EOF,
	},
	{
		name:  "null delayed",
		input: []byte{0xff, 0xd8, 0xff, 0xd9},
		delay: time.Millisecond,
		want:  [][]byte{{0xff, 0xd8, 0xff, 0xd9}},
		err:   io.EOF,
	},
	{
		name:  "full",
		input: fullInput,
		delay: 0,
		want:  fullWant,
		err:   io.EOF,
	},
	{
		name:  "full delayed",
		input: fullInput,
		delay: time.Millisecond,
		want:  fullWant,
		err:   io.EOF,
	},
	{
		name: "thumbnail",
		input: []byte{
			0xff, 0xd8, 'a', 0xff, 0xd8, 't', 0xff, 0xd9, 'b', 0xff, 0xd9,
			0xff, 0xd8, 'c', 0xff, 0xd9,
		},
		want: [][]byte{
			{0xff, 0xd8, 'a', 0xff, 0xd8, 't', 0xff, 0xd9, 'b', 0xff, 0xd9},
			{0xff, 0xd8, 'c', 0xff, 0xd9},
		},
		err: io.EOF,
	},
	{
		name:  "truncated image",
		input: []byte{0xff, 0xd8, 'a', 0xff, 0xd9, 0xff, 0xd8, 'b'},
		want:  [][]byte{{0xff, 0xd8, 'a', 0xff, 0xd9}},
		err:   io.ErrUnexpectedEOF,
	},
	{
		name:  "truncated start",
		input: []byte{0xff, 0xd8, 0xff, 0xd9, 0xff},
		want:  [][]byte{{0xff, 0xd8, 0xff, 0xd9}},
		err:   io.ErrUnexpectedEOF,
	},
	{
		name:  "not jpeg",
		input: []byte{0x00, 0x00, 0x01, 0xb3},
		err:   fmt.Errorf("lexer: not at start of image: %#v", []byte{0x00, 0x00}),
	},
}

func TestLexLongImage(t *testing.T) {
	// Entropy data longer than the read buffer, with fill bytes before the
	// end marker.
	img := append([]byte{0xff, 0xd8}, bytes.Repeat([]byte{0x12, 0x34, 0x56}, 5000)...)
	img = append(img, 0xff, 0x00, 0x78, 0xff, 0xff, 0xd9)
	input := append(append([]byte{}, img...), 0xff, 0xd8, 0xff, 0xd9)

	var buf chunkEncoder
	err := Lex(&buf, bytes.NewReader(input), 0)
	if err != io.EOF {
		t.Errorf("unexpected error: %v", err)
	}
	want := [][]byte{img, {0xff, 0xd8, 0xff, 0xd9}}
	if !reflect.DeepEqual([][]byte(buf), want) {
		t.Errorf("did not get expected images, got %d", len(buf))
	}
}

func TestLex(t *testing.T) {
	Log = (*logging.TestLogger)(t)
	for _, test := range jpegTests {
		var buf chunkEncoder
		err := Lex(&buf, bytes.NewReader(test.input), test.delay)
		if fmt.Sprint(err) != fmt.Sprint(test.err) {
			t.Errorf("unexpected error for %q: got:%v want:%v", test.name, err, test.err)
		}
		got := [][]byte(buf)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("unexpected result for %q:\ngot :%#v\nwant:%#v", test.name, got, test.want)
		}
	}
}

type chunkEncoder [][]byte

func (e *chunkEncoder) Write(b []byte) (int, error) {
	*e = append(*e, b)
	return len(b), nil
}
