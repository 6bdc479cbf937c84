package core

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ArchiveRoot is the reserved prefix holding archived documents.
const ArchiveRoot = "archive"

const (
	maxPathLength          = 512
	maxCommitMessageLength = 1000
)

var errNUL = errors.New("must not contain NUL bytes")

// ValidatePath trims surrounding spaces from a document path and rejects
// anything that is not a relative, extension-less path inside the tree.
func ValidatePath(p string) (string, error) {
	clean := strings.TrimSpace(p)
	if strings.HasPrefix(clean, "/") {
		return "", invalidPath(p, "must not start with a slash")
	}
	if strings.HasSuffix(clean, ".md") {
		return "", invalidPath(p, "must not carry the .md extension")
	}

	err := validation.Validate(clean,
		validation.Required,
		validation.Length(1, maxPathLength),
		validation.By(segmentsRule),
	)
	if err != nil {
		return "", invalidPath(p, "%v", err)
	}
	return clean, nil
}

func segmentsRule(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsRune(s, 0) {
		return errNUL
	}
	if strings.Contains(s, `\`) {
		return errors.New("must use forward slashes")
	}
	for _, seg := range strings.Split(s, "/") {
		switch seg {
		case "":
			return errors.New("must not contain empty segments")
		case ".", "..":
			return errors.New("must not contain relative segments")
		}
		if strings.HasPrefix(seg, ".") {
			return errors.New("must not contain hidden segments")
		}
	}
	return nil
}

// IsArchived reports whether path lies under the archive root.
func IsArchived(p string) bool {
	return p == ArchiveRoot || strings.HasPrefix(p, ArchiveRoot+"/")
}

// ArchivePath returns where path lives once archived.
func ArchivePath(p string) string {
	return ArchiveRoot + "/" + p
}

// UnarchivePath strips the archive root from path.
func UnarchivePath(p string) string {
	return strings.TrimPrefix(p, ArchiveRoot+"/")
}

// ValidateAttachmentName rejects names that could address another file.
func ValidateAttachmentName(name string) error {
	err := validation.Validate(name,
		validation.Required,
		validation.Length(1, 255),
		validation.By(func(value interface{}) error {
			s, _ := value.(string)
			switch {
			case strings.ContainsRune(s, 0):
				return errNUL
			case strings.ContainsAny(s, `/\`):
				return errors.New("must not contain path separators")
			case strings.Contains(s, ".."):
				return errors.New("must not contain '..'")
			}
			return nil
		}),
	)
	if err != nil {
		return invalidPath(name, "attachment name %v", err)
	}
	return nil
}

// ValidateCommitMessage trims msg and checks it can be used as a commit message.
func ValidateCommitMessage(msg string) (string, error) {
	msg = strings.TrimSpace(msg)
	err := validation.Validate(msg,
		validation.Required,
		validation.RuneLength(1, maxCommitMessageLength),
		validation.By(func(value interface{}) error {
			if strings.ContainsRune(value.(string), 0) {
				return errNUL
			}
			return nil
		}),
	)
	if err != nil {
		return "", E(KindStorage, "commit message", "", err)
	}
	return msg, nil
}

// HumanizeSlug turns "getting-started_guide" into "Getting Started Guide".
func HumanizeSlug(slug string) string {
	slug = strings.TrimSuffix(slug, ".md")
	words := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
