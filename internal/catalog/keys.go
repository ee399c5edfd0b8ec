package catalog

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Namespace is the top-level prefix of every object this service writes.
const Namespace = "videos"

const (
	RenditionFormat = "mp4"
	ThumbnailName   = "thumbnail.jpg"
)

// VideoExtensions maps accepted upload extensions to the content type the
// client must send with the upload.
var VideoExtensions = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"flv":  "video/x-flv",
	"wmv":  "video/x-ms-wmv",
}

var uploadKeyPattern = regexp.MustCompile(
	`^` + Namespace + `/uploads/([1-9][0-9]*)/([A-Za-z0-9_-]+)\.(mp4|webm|mov|avi|mkv|flv|wmv)$`)

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// IsVideoFile reports whether filename has an accepted upload extension.
func IsVideoFile(filename string) bool {
	_, ok := VideoExtensions[Extension(filename)]
	return ok
}

// ContentTypeFor returns the upload content type for an extension, falling
// back to video/mp4.
func ContentTypeFor(ext string) string {
	if ct, ok := VideoExtensions[strings.ToLower(ext)]; ok {
		return ct
	}
	return "video/mp4"
}

func UploadKey(assetID int64, token, ext string) string {
	return fmt.Sprintf("%s/uploads/%d/%s.%s", Namespace, assetID, token, ext)
}

func RenditionKey(sourceFileID int64, profile string) string {
	return fmt.Sprintf("%s/renditions/%d/%d-%s.%s", Namespace, sourceFileID, sourceFileID, profile, RenditionFormat)
}

func ThumbnailKey(sourceFileID int64) string {
	return fmt.Sprintf("%s/thumbnails/%d/%s", Namespace, sourceFileID, ThumbnailName)
}

// UploadKeyParts is the parsed form of an upload storage key.
type UploadKeyParts struct {
	AssetID int64
	Token   string
	Ext     string
}

// ParseUploadKey validates key against the upload key layout. It reports
// false for anything else, including keys with traversal segments.
func ParseUploadKey(key string) (UploadKeyParts, bool) {
	m := uploadKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return UploadKeyParts{}, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return UploadKeyParts{}, false
	}
	return UploadKeyParts{AssetID: id, Token: m[2], Ext: m[3]}, true
}
