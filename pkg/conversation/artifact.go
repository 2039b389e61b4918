package conversation

import (
	"context"
	"errors"
	"io"

	"github.com/tinyland-inc/picochat/pkg/chat"
	"github.com/tinyland-inc/picochat/pkg/media"
)

// Uploader stores a file on the server and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
}

// UploadArtifact uploads blob when the send resolves its attachment.
func UploadArtifact(up Uploader, blob media.Blob) ArtifactProducer {
	return func(ctx context.Context) (string, error) {
		if len(blob.Data) == 0 {
			return "", errors.New("attachment is empty")
		}
		return up.Upload(ctx, blob.Name, blob.Reader())
	}
}

// InlineArtifact ships blob inside the message as a data URL. Recorded
// audio travels this way.
func InlineArtifact(blob media.Blob) ArtifactProducer {
	return func(context.Context) (string, error) {
		if len(blob.Data) == 0 {
			return "", errors.New("attachment is empty")
		}
		return blob.DataURL(), nil
	}
}

// DetectType classifies an uploaded blob: images by MIME, everything else as file.
func DetectType(blob media.Blob) chat.Type {
	if blob.IsImage() {
		return chat.TypeImage
	}
	return chat.TypeFile
}
