package extract

import (
	"errors"
	"testing"

	"docchat/internal/domain"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		allowText bool
		file      string
		data      []byte
		want      string
		wantErr   bool
	}{
		{name: "text allowed", allowText: true, file: "notes.TXT", data: []byte("Alpha Beta"), want: "Alpha Beta"},
		{name: "text rejected", allowText: false, file: "notes.txt", data: []byte("Alpha"), wantErr: true},
		{name: "unsupported", allowText: true, file: "image.png", data: []byte{0x89}, wantErr: true},
		{name: "blank text", allowText: true, file: "blank.md", data: []byte(" \n\t"), wantErr: true},
		{name: "invalid utf8", allowText: true, file: "bad.txt", data: []byte{0xff, 0xfe}, wantErr: true},
		{name: "not a pdf", file: "fake.pdf", data: []byte("hello world"), wantErr: true},
		{name: "truncated pdf", file: "cut.pdf", data: []byte("%PDF-1.4\n1 0 obj\n<<"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.allowText).Extract(tt.file, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrExtraction) {
				t.Fatalf("error %v is not an extraction error", err)
			}
			if got != tt.want {
				t.Fatalf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}
