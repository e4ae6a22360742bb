package message

import (
	"strings"
	"testing"

	"github.com/nhle/tempmail/internal/model"
)

func TestBody(t *testing.T) {
	html := func(s string) *string { return &s }

	tests := []struct {
		name    string
		msg     model.MessageDetail
		want    string
		notWant string
	}{
		{
			name:    "html converted to text",
			msg:     model.MessageDetail{HTMLBody: html("<p>Hello <b>there</b></p>"), Body: "plain"},
			want:    "Hello there",
			notWant: "<p>",
		},
		{
			name: "plain body without html",
			msg:  model.MessageDetail{Body: "just text"},
			want: "just text",
		},
		{
			name:    "blank html falls back to plain body",
			msg:     model.MessageDetail{HTMLBody: html("   "), Body: "fallback"},
			want:    "fallback",
			notWant: "No content",
		},
		{
			name: "nothing to show",
			msg:  model.MessageDetail{},
			want: "No content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Body(&tt.msg)
			if !strings.Contains(got, tt.want) {
				t.Errorf("Body = %q, want it to contain %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("Body = %q, must not contain %q", got, tt.notWant)
			}
		})
	}
}
