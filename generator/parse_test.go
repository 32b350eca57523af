package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Parsed
	}{
		{
			name: "canonical",
			raw:  "SUBJECT: Hello\n\nBODY:\nWorld",
			want: Parsed{Subject: "Hello", Body: "World"},
		},
		{
			name: "no markers",
			raw:  "no markers here",
			want: Parsed{},
		},
		{
			name: "case insensitive with preamble",
			raw:  "Sure! Here it is.\nsubject:   Cloud savings for XYZ Corp  \nbody:\n\nHi Jane,\n\nLine two.\n\nBest,\nAlex\n",
			want: Parsed{Subject: "Cloud savings for XYZ Corp", Body: "Hi Jane,\n\nLine two.\n\nBest,\nAlex"},
		},
		{
			name: "bold markers",
			raw:  "**SUBJECT:** Quick idea\n\n**BODY:**\nHello there",
			want: Parsed{Subject: "Quick idea", Body: "Hello there"},
		},
		{
			name: "subject only",
			raw:  "SUBJECT: Only a subject",
			want: Parsed{Subject: "Only a subject"},
		},
		{
			name: "empty subject line does not swallow body",
			raw:  "SUBJECT:\nBODY:\nText",
			want: Parsed{Subject: "", Body: "Text"},
		},
		{
			name: "empty input",
			raw:  "",
			want: Parsed{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseResponse(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.Subject == "" || tc.want.Body == "", got.Miss())
		})
	}
}
