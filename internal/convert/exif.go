package convert

import (
	"bytes"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
)

// readSourceMeta pulls the capture timestamp out of the source EXIF block
// so it survives into the result summary. Most non-JPEG sources carry no
// EXIF; that is not an error.
func readSourceMeta(data []byte) string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if dt, err := x.DateTime(); err == nil {
		return fmt.Sprintf("DateTimeOriginal=%s", dt.Format("2006:01:02 15:04:05"))
	}
	return ""
}
