package s3storage

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// SanitizeFileName replaces every character outside [A-Za-z0-9.-] with _.
func SanitizeFileName(name string) string {
	return unsafeName.ReplaceAllString(name, "_")
}

// GeneratePath builds {userID}/[{prefix}/]{millis}_{rand6}_{name}. The
// timestamp and random suffix are the only collision defense; nothing
// checks the store beforehand.
func GeneratePath(userID, fileName, prefix string) string {
	return generatePath(time.Now(), userID, fileName, prefix)
}

func generatePath(now time.Time, userID, fileName, prefix string) string {
	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte('/')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('/')
	}
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	b.WriteString(randomSuffix(6))
	b.WriteByte('_')
	b.WriteString(SanitizeFileName(fileName))
	return b.String()
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = base36[rand.Intn(len(base36))]
	}
	return string(buf)
}
