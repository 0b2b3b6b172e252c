// Package migrations 内置各数据库的建表脚本。
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// Action 迁移方向
type Action string

const (
	Up   Action = "up"
	Down Action = "down"
)

// Script 一个迁移文件拆分后的语句
type Script struct {
	Path       string
	Statements []string
}

// Load 读取指定数据库和方向的全部迁移文件；回滚时按文件名倒序
func Load(dbType string, action Action) ([]Script, error) {
	if dbType != "postgres" && dbType != "mysql" {
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
	if action != Up && action != Down {
		return nil, fmt.Errorf("unsupported action %q", action)
	}

	paths, err := fs.Glob(files, fmt.Sprintf("%s/*.%s.sql", dbType, action))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	if action == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	}

	scripts := make([]Script, 0, len(paths))
	for _, path := range paths {
		content, err := files.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		scripts = append(scripts, Script{Path: path, Statements: SplitStatements(string(content))})
	}
	return scripts, nil
}

// SplitStatements 按分号分割 SQL 语句，忽略字符串中的分号和整行注释
func SplitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var inString bool
	var stringChar rune

	flush := func() {
		if stmt := stripComments(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, r := range sql {
		switch {
		case r == '\'' || r == '"' || r == '`':
			if !inString {
				inString = true
				stringChar = r
			} else if r == stringChar {
				inString = false
			}
			current.WriteRune(r)
		case r == ';' && !inString:
			current.WriteRune(r)
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
