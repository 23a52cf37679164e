package schema

import (
	"strings"

	"github.com/harrywg/mtconnect-agent/internal/models"
)

type node struct {
	element  string
	attrs    map[string]string
	children []*node
	item     *models.DataItem
}

type axis int

const (
	axisChild axis = iota
	axisDescendant
)

type predicate struct {
	attr  string
	value string
}

type step struct {
	axis       axis
	name       string
	predicates []predicate
}

// ResolvePath 解析路径表达式，返回匹配的数据项（文档顺序）；device 为 nil 表示所有设备
func (c *Catalog) ResolvePath(device *models.Device, path string) ([]*models.DataItem, error) {
	devices := c.devices
	if device != nil {
		devices = []*models.Device{device}
	}

	path = strings.TrimSpace(path)
	if path == "" {
		var all []*models.DataItem
		for _, d := range devices {
			all = append(all, d.AllDataItems()...)
		}
		return all, nil
	}

	root := &node{}
	for _, d := range devices {
		if t, ok := c.trees[d.UUID]; ok {
			root.children = append(root.children, t)
		}
	}

	matched := make(map[*models.DataItem]bool)
	for _, expr := range splitUnion(path) {
		steps, ok := parseSteps(expr)
		if !ok {
			return nil, invalidPath(path)
		}
		for _, n := range evaluate(root, steps) {
			collectItems(n, matched)
		}
	}
	if len(matched) == 0 {
		return nil, invalidPath(path)
	}

	var out []*models.DataItem
	for _, d := range devices {
		for _, di := range d.AllDataItems() {
			if matched[di] {
				out = append(out, di)
			}
		}
	}
	return out, nil
}

func invalidPath(path string) error {
	return models.NewError(models.KindNotFound, models.CodeInvalidXPath,
		"The path could not be parsed. Invalid syntax: %s", path)
}

func evaluate(root *node, steps []step) []*node {
	ctx := []*node{root}
	for _, s := range steps {
		// Components / DataItems 容器元素不单独建模
		if s.name == "Components" || s.name == "DataItems" {
			if s.axis == axisDescendant {
				var next []*node
				for _, n := range ctx {
					next = append(next, n)
					next = append(next, descendants(n)...)
				}
				ctx = uniqueNodes(next)
			}
			continue
		}

		var next []*node
		for _, n := range ctx {
			candidates := n.children
			if s.axis == axisDescendant {
				candidates = descendants(n)
			}
			for _, cand := range candidates {
				if s.matches(cand) {
					next = append(next, cand)
				}
			}
		}
		ctx = uniqueNodes(next)
		if len(ctx) == 0 {
			return nil
		}
	}
	return ctx
}

func (s step) matches(n *node) bool {
	if s.name != "*" && s.name != n.element {
		return false
	}
	for _, p := range s.predicates {
		if n.attrs[p.attr] != p.value {
			return false
		}
	}
	return true
}

func descendants(n *node) []*node {
	var out []*node
	for _, c := range n.children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}

func uniqueNodes(ns []*node) []*node {
	seen := make(map[*node]bool, len(ns))
	out := ns[:0]
	for _, n := range ns {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func collectItems(n *node, into map[*models.DataItem]bool) {
	if n.item != nil {
		into[n.item] = true
		return
	}
	for _, c := range n.children {
		collectItems(c, into)
	}
}

// splitUnion 按顶层 | 拆分
func splitUnion(path string) []string {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
		case ch == '|' && depth == 0:
			parts = append(parts, strings.TrimSpace(path[start:i]))
			start = i + 1
		}
	}
	return append(parts, strings.TrimSpace(path[start:]))
}

func parseSteps(expr string) ([]step, bool) {
	var steps []step
	i := 0
	for i < len(expr) {
		if expr[i] != '/' {
			return nil, false
		}
		s := step{axis: axisChild}
		i++
		if i < len(expr) && expr[i] == '/' {
			s.axis = axisDescendant
			i++
		}

		start := i
		for i < len(expr) && expr[i] != '[' && expr[i] != '/' {
			i++
		}
		s.name = strings.TrimSpace(expr[start:i])
		if idx := strings.LastIndexByte(s.name, ':'); idx >= 0 {
			s.name = s.name[idx+1:]
		}
		if !validName(s.name) {
			return nil, false
		}

		for i < len(expr) && expr[i] == '[' {
			end := closingBracket(expr, i)
			if end < 0 {
				return nil, false
			}
			preds, ok := parsePredicate(expr[i+1 : end])
			if !ok {
				return nil, false
			}
			s.predicates = append(s.predicates, preds...)
			i = end + 1
		}
		steps = append(steps, s)
	}
	return steps, len(steps) > 0
}

func closingBracket(expr string, open int) int {
	var quote byte
	for i := open + 1; i < len(expr); i++ {
		ch := expr[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ']':
			return i
		}
	}
	return -1
}

// parsePredicate 支持 @attr="v" 以及用 and 连接的多个条件
func parsePredicate(body string) ([]predicate, bool) {
	var preds []predicate
	for _, clause := range strings.Split(body, " and ") {
		clause = strings.TrimSpace(clause)
		if !strings.HasPrefix(clause, "@") {
			return nil, false
		}
		eq := strings.IndexByte(clause, '=')
		if eq < 0 {
			return nil, false
		}
		attr := strings.TrimSpace(clause[1:eq])
		value := strings.TrimSpace(clause[eq+1:])
		if len(value) < 2 || (value[0] != '"' && value[0] != '\'') || value[len(value)-1] != value[0] {
			return nil, false
		}
		preds = append(preds, predicate{attr: attr, value: value[1 : len(value)-1]})
	}
	return preds, true
}

func validName(name string) bool {
	if name == "*" {
		return true
	}
	if name == "" {
		return false
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !(i > 0 && (isDigit || r == '-' || r == '.')) {
			return false
		}
	}
	return true
}
