package service

import (
	"strconv"
	"strings"

	"filecollector/internal/domain"
)

// StudentIDLabel подпись поля формы с номером студента
const StudentIDLabel = "学号"

// IsSameContent сравнивает наборы полей формы как множества
func IsSameContent(a, b []domain.InfoItem) bool {
	setA := infoSet(a)
	setB := infoSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for item := range setA {
		if _, ok := setB[item]; !ok {
			return false
		}
	}
	return true
}

func infoSet(items []domain.InfoItem) map[domain.InfoItem]struct{} {
	set := make(map[domain.InfoItem]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

// StudentID берет первое поле с меткой номера студента
func StudentID(info []domain.InfoItem) (int64, bool) {
	for _, it := range info {
		if it.Label == StudentIDLabel {
			return parseLeadingInt(it.Value)
		}
	}
	return 0, false
}

func MatchesStudentID(rec domain.Submission, id int64) bool {
	sid, ok := StudentID(rec.Info)
	return ok && sid == id
}

// parseLeadingInt разбирает целое в начале строки: " 2021001abc" -> 2021001
func parseLeadingInt(s string) (int64, bool) {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizeFileName убирает символы, недопустимые в именах файлов
func NormalizeFileName(name string) string {
	name = strings.TrimSpace(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
}
