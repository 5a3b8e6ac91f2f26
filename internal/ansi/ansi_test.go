package ansi

import "testing"

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text",
			in:   "hello world",
			want: "hello world",
		},
		{
			name: "single color sequence",
			in:   "\x1b[31mred\x1b[0m text",
			want: "red text",
		},
		{
			name: "multiple sequences",
			in:   "a\x1b[1mb\x1b[0mc\x1b[32md\x1b[0m",
			want: "abcd",
		},
		{
			name: "unicode around ansi",
			in:   "✓ \x1b[36mblue\x1b[0m 你好",
			want: "✓ blue 你好",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Fatalf("Strip() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	got := Clean([]byte("\x1b[32minfo\x1b[0m: Application started.\r\nnext\r\n"))
	want := "info: Application started.\nnext\n"

	if got != want {
		t.Fatalf("Clean() = %q, want %q", got, want)
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		n     int
		width int
		want  string
	}{
		{
			name: "last lines skipping blanks",
			in:   "one\ntwo\n\nthree\n\n",
			n:    2,
			want: "two\nthree",
		},
		{
			name: "fewer lines than requested",
			in:   "only",
			n:    5,
			want: "only",
		},
		{
			name:  "truncated by display width",
			in:    "Unhandled exception. System.IO.FileNotFoundException",
			n:     1,
			width: 20,
			want:  "Unhandled excepti...",
		},
		{
			name:  "wide runes count double",
			in:    "天气预报天气预报",
			n:     1,
			width: 9,
			want:  "天气预...",
		},
		{
			name: "zero lines",
			in:   "anything",
			n:    0,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tail([]byte(tt.in), tt.n, tt.width); got != tt.want {
				t.Fatalf("Tail() = %q, want %q", got, tt.want)
			}
		})
	}
}
