package studio

import (
	"testing"

	"ugc-studio/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pending(name string) model.PendingFile {
	return model.PendingFile{Name: name, ContentType: "image/png", Data: []byte(name)}
}

func TestComposerKeepsFilesAndPreviewsAligned(t *testing.T) {
	c := NewComposer(0)
	require.NoError(t, c.Add(pending("a"), pending("b"), pending("c")))
	require.NoError(t, c.Remove(1))

	atts := c.Attachments()
	require.Len(t, atts, 2)
	assert.Equal(t, "a", atts[0].Name)
	assert.Equal(t, pending("a").Preview(), atts[0].Preview)
	assert.Equal(t, "c", atts[1].Name)
	assert.Equal(t, pending("c").Preview(), atts[1].Preview)

	files, previews := c.Take()
	require.Len(t, files, 2)
	require.Len(t, previews, 2)
	assert.Equal(t, "c", files[1].Name)
	assert.Equal(t, 0, c.Len())
}

func TestComposerLimits(t *testing.T) {
	c := NewComposer(2)
	require.NoError(t, c.Add(pending("a")))
	assert.ErrorIs(t, c.Add(pending("b"), pending("c")), ErrTooManyAttachments)
	assert.Equal(t, 1, c.Len())

	assert.ErrorIs(t, c.Remove(5), ErrAttachmentIndex)
	assert.ErrorIs(t, c.Remove(-1), ErrAttachmentIndex)

	c.Clear()
	assert.Empty(t, c.Attachments())
}
