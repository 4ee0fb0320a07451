package descriptor

import (
	"strconv"
	"strings"
)

// CompareVersions compares dotted numeric versions such as "2022.3.1".
// Missing components count as zero; a non-numeric suffix in a component
// ("1f1") is ignored.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		x, y := component(as, i), component(bs, i)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func component(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	p := parts[i]
	end := 0
	for end < len(p) && p[end] >= '0' && p[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(p[:end])
	return n
}
