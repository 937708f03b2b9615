package main

import (
	"os"

	"github.com/Hara602/inputSentry/internal/sysutil"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

func listAttachedDevices() error {
	nodes, err := sysutil.ListEventNodes()
	if err != nil {
		return err
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Node", "Name", "Capabilities", "Platform ID", "By id", "By path"})
	for _, node := range nodes {
		info, err := sysutil.DescribeInput(node)
		if err != nil {
			sysutil.Log.Warn("device skipped", zap.String("path", node), zap.Error(err))
			continue
		}
		t.AppendRow(table.Row{node, info.Name, info.Capabilities.String(), info.PlatformID, info.ByID, info.ByPath})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}
