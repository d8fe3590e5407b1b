package iocli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestStdio_Output(t *testing.T) {
	var out bytes.Buffer
	s := newStdio(strings.NewReader(""), &out)

	s.Println("Pending:", 3)
	s.Printf("%s=%d\n", "conflicts", 1)
	_, err := s.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "Pending: 3\nconflicts=1\nraw", out.String())
}

func TestStdio_ReadInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "line", input: "Dishes\n", want: "Dishes"},
		{name: "trims spaces", input: "  Laundry  \r\n", want: "Laundry"},
		{name: "last line without newline", input: "Cooking", want: "Cooking"},
		{name: "empty stream", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			s := newStdio(strings.NewReader(tt.input), &out)

			got, err := s.ReadInput("Title: ")
			if tt.wantErr {
				assert.ErrorIs(t, err, io.EOF)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Title: ", out.String())
		})
	}
}

func TestStdio_ReadPassword_Piped(t *testing.T) {
	s := newStdio(strings.NewReader("correct horse\n"), io.Discard)

	got, err := s.ReadPassword("Passphrase: ")
	require.NoError(t, err)
	assert.Equal(t, "correct horse", got)
}
