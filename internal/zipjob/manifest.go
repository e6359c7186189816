package zipjob

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
)

// Entry одна строка манифеста: ссылка на объект и имя внутри архива
type Entry struct {
	URL   string
	Alias string
}

// EncodeLine кодирует ссылку и имя по отдельности, чтобы "/" и юникод не ломали строку
func EncodeLine(url, alias string) string {
	return "/url/" + base64.URLEncoding.EncodeToString([]byte(url)) +
		"/alias/" + base64.URLEncoding.EncodeToString([]byte(alias))
}

func decodeLine(line string) (Entry, error) {
	rest, ok := strings.CutPrefix(line, "/url/")
	if !ok {
		return Entry{}, fmt.Errorf("missing url segment")
	}
	encURL, encAlias, ok := strings.Cut(rest, "/alias/")
	if !ok {
		return Entry{}, fmt.Errorf("missing alias segment")
	}

	url, err := base64.URLEncoding.DecodeString(encURL)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid url encoding: %w", err)
	}
	alias, err := base64.URLEncoding.DecodeString(encAlias)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid alias encoding: %w", err)
	}
	return Entry{URL: string(url), Alias: string(alias)}, nil
}

// ParseManifest разбирает манифест, пустые строки пропускаются
func ParseManifest(data []byte) ([]Entry, error) {
	var entries []Entry

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		e, err := decodeLine(line)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", n, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return entries, nil
}
