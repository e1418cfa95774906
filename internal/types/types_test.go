package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Always validate input", "always validate input"},
		{"  ALWAYS   VALIDATE   INPUT  ", "always validate input"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in))
	}
}

func TestBulletHash(t *testing.T) {
	h1 := BulletHash("test/patterns", "Always validate input")
	h2 := BulletHash("test/patterns", "  always   VALIDATE input ")
	assert.Equal(t, h1, h2, "whitespace and case must not change the hash")

	h3 := BulletHash("other/patterns", "Always validate input")
	assert.NotEqual(t, h1, h3, "section is part of bullet identity")
}

func TestBulletScore(t *testing.T) {
	b := Bullet{Helpful: 5, Harmful: 2}
	assert.Equal(t, 3, b.Score())
}

func TestValidSection(t *testing.T) {
	assert.True(t, ValidSection("typescript/patterns"))
	assert.True(t, ValidSection("build/test/patterns"))
	assert.True(t, ValidSection("v1.2/api-notes"))
	assert.False(t, ValidSection("TypeScript/Patterns"))
	assert.False(t, ValidSection("has space"))
	assert.False(t, ValidSection("/leading"))
	assert.False(t, ValidSection("trailing/"))
	assert.False(t, ValidSection(""))
}

func TestDeltaValidate(t *testing.T) {
	good := Delta{
		ID:      uuid.NewString(),
		Section: "test/patterns",
		Op:      OpAdd,
		Content: "Always validate input before processing",
		Metadata: DeltaMetadata{
			Confidence: 0.85,
			Evidence:   "seen in three separate vitest failures",
			CreatedAt:  time.Now().UTC(),
		},
	}
	require.NoError(t, good.Validate())

	t.Run("bad op", func(t *testing.T) {
		d := good
		d.Op = DeltaOp("replace")
		assert.Error(t, d.Validate())
	})

	t.Run("bad section", func(t *testing.T) {
		d := good
		d.Section = "Test Patterns"
		assert.Error(t, d.Validate())
	})

	t.Run("short content", func(t *testing.T) {
		d := good
		d.Content = "nope"
		assert.Error(t, d.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		d := good
		d.Metadata.Confidence = 1.3
		assert.Error(t, d.Validate())
	})

	t.Run("negative counters", func(t *testing.T) {
		d := good
		d.Metadata.Helpful = -1
		assert.Error(t, d.Validate())
	})
}

func TestInsightHasTag(t *testing.T) {
	in := Insight{MetaTags: []string{"recurring-error", "thread-specific"}}
	assert.True(t, in.HasTag("recurring-error"))
	assert.False(t, in.HasTag("systemic"))
}

func TestTraceFailed(t *testing.T) {
	tr := ExecutionTrace{Results: []ExecutionResult{
		{Runner: "tsc", Status: StatusPass},
		{Runner: "vitest", Status: StatusFail},
	}}
	assert.True(t, tr.Failed())

	tr.Results = tr.Results[:1]
	assert.False(t, tr.Failed())
}
