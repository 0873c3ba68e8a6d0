package profiles

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/angelmondragon/miravo-storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/miravo-storefront/pkg/errors"
)

// MaxAvatarBytes caps uploaded avatar images.
const MaxAvatarBytes = 2 << 20

var avatarExt = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// AvatarStore holds avatar images and serves them from a public URL.
type AvatarStore interface {
	Upload(ctx context.Context, accessToken, path, contentType string, data []byte) error
	PublicURL(path string) string
}

// AvatarFile is an uploaded image as received from the browser.
type AvatarFile struct {
	Name string
	Data []byte
}

// WithAvatarStore enables avatar uploads.
func (s *Service) WithAvatarStore(store AvatarStore) *Service {
	s.avatars = store
	return s
}

// UploadAvatar stores the image at <userID>/avatar.<ext>, replacing the
// previous one, and points the profile's avatar_url at it.
func (s *Service) UploadAvatar(ctx context.Context, userID, accessToken string, file AvatarFile) (*models.Profile, error) {
	if s.avatars == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "avatar storage unavailable")
	}
	if len(file.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please select an image file")
	}
	if len(file.Data) > MaxAvatarBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Image must be less than 2MB").
			WithDetails(map[string]any{"limit_bytes": MaxAvatarBytes})
	}
	detected := mimetype.Detect(file.Data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please select an image file").
			WithDetails(map[string]any{"content_type": detected.String()})
	}
	if _, err := s.repo.FindByUserID(ctx, userID); err != nil {
		return nil, err
	}

	objectPath := userID + "/avatar." + extensionFor(file.Name, detected)
	ctx = s.logg.WithFields(ctx, map[string]any{"user_id": userID, "object": objectPath})
	if err := s.avatars.Upload(ctx, accessToken, objectPath, detected.String(), file.Data); err != nil {
		s.logg.Error(ctx, "profile.avatar.upload_failed", err)
		return nil, err
	}
	avatarURL := s.avatars.PublicURL(objectPath)
	return s.Update(ctx, userID, Update{AvatarURL: &avatarURL})
}

// extensionFor keeps the browser's file extension and falls back to the
// detected type's when the name has none usable.
func extensionFor(name string, detected *mimetype.MIME) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if avatarExt.MatchString(ext) {
		return ext
	}
	if ext = strings.TrimPrefix(detected.Extension(), "."); ext != "" {
		return ext
	}
	return "img"
}
