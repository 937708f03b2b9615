//go:build linux

package sysutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Hara602/inputSentry/internal/analysis"
	"github.com/Hara602/inputSentry/internal/model"
)

// overridable in tests
var (
	InputDir = "/dev/input"
	SysInput = "/sys/class/input"
)

// ListEventNodes 列出 /dev/input/event* 字符设备，按编号排序
func ListEventNodes() ([]string, error) {
	entries, err := os.ReadDir(InputDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", InputDir, err)
	}
	var nodes []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		if e.Type()&os.ModeCharDevice == 0 && e.Type()&os.ModeDevice == 0 {
			continue
		}
		nodes = append(nodes, filepath.Join(InputDir, e.Name()))
	}
	sort.Slice(nodes, func(i, j int) bool { return eventNumber(nodes[i]) < eventNumber(nodes[j]) })
	return nodes, nil
}

func eventNumber(node string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(node), "event"))
	if err != nil {
		return -1
	}
	return n
}

// IsEventNode reports whether a devnode path names an evdev node.
func IsEventNode(devName string) bool {
	return strings.HasPrefix(filepath.Base(devName), "event") && strings.Contains(devName, "input/")
}

// DescribeInput 通过 sysfs 采集设备信息
// /sys/class/input/eventN/device/{name,phys,uniq,id/*,capabilities/*}
func DescribeInput(devNode string) (model.DeviceInfo, error) {
	base := filepath.Base(devNode)
	sysPath := filepath.Join(SysInput, base, "device")
	if _, err := os.Stat(sysPath); err != nil {
		return model.DeviceInfo{}, fmt.Errorf("no sysfs entry for %s: %w", devNode, err)
	}

	name := readFile(filepath.Join(sysPath, "name"))
	bus := readFile(filepath.Join(sysPath, "id", "bustype"))
	vendor := readFile(filepath.Join(sysPath, "id", "vendor"))
	product := readFile(filepath.Join(sysPath, "id", "product"))
	uniq := readFile(filepath.Join(sysPath, "uniq"))

	byID := findLink(filepath.Join(InputDir, "by-id"), base)
	byPath := findLink(filepath.Join(InputDir, "by-path"), base)

	info := model.DeviceInfo{
		Name:         name,
		Path:         devNode,
		Capabilities: analysis.ClassifyInput(sysPath),
		ByID:         byID,
		ByPath:       byPath,
	}
	info.PlatformID = PlatformID(byID, bus, vendor, product, name, uniq)
	return info, nil
}

// PlatformID 稳定的设备标识: 优先 by-id 链接名，否则由总线/厂商/产品/名称拼出
// eventN 编号在重新插拔后会变化，不能用作标识
func PlatformID(byID, bus, vendor, product, name, uniq string) string {
	if byID != "" {
		return "by-id:" + filepath.Base(byID)
	}
	id := fmt.Sprintf("evdev:%s:%s:%s:%s", bus, vendor, product, name)
	if uniq != "" && uniq != "unknown" {
		id += ":" + uniq
	}
	return id
}

// findLink 在 by-id / by-path 目录里找指向 eventN 的符号链接
func findLink(dir, target string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		link := filepath.Join(dir, e.Name())
		dest, err := os.Readlink(link)
		if err != nil {
			continue
		}
		if filepath.Base(dest) == target {
			return link
		}
	}
	return ""
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
