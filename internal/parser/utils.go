package parser

import (
	"regexp"
	"strings"
)

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	separatorRe = regexp.MustCompile(`[\s\-.]+`)
	nonKeyRe    = regexp.MustCompile(`[^a-z0-9_]`)
	tokenRe     = regexp.MustCompile(`[a-z0-9]+`)
)

// NormalizeColumnName 规范化列名：小写、去首尾空白、压缩内部空白
func NormalizeColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "\r", " ")
	name = strings.ReplaceAll(name, "\n", " ")
	name = strings.ReplaceAll(name, "\t", " ")
	return spaceRe.ReplaceAllString(strings.TrimSpace(name), " ")
}

// CleanColumnName 在规范化基础上把空白/连字符/点转为下划线，并去掉 [a-z0-9_] 以外的字符
// "PRIME-MANAGER" -> "prime_manager"
func CleanColumnName(name string) string {
	name = separatorRe.ReplaceAllString(NormalizeColumnName(name), "_")
	name = nonKeyRe.ReplaceAllString(name, "")
	return strings.Trim(name, "_")
}

// Tokens 切分出列名中的字母数字单词
func Tokens(name string) []string {
	return tokenRe.FindAllString(NormalizeColumnName(name), -1)
}

// ContainsAny 检查字符串是否包含任意一个关键词
func ContainsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// HasToken 检查单词列表中是否存在指定单词
func HasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}
