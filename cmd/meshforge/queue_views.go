package main

import (
	"strconv"
	"strings"
	"time"

	"meshforge/internal/jobs"
)

const promptDisplayWidth = 40

func buildJobStatusRows(stats map[jobs.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range jobs.AllStatuses() {
		rows = append(rows, []string{displayLabel(string(status)), strconv.Itoa(stats[status])})
	}
	return rows
}

func buildJobListRows(items []*jobs.Job) [][]string {
	rows := make([][]string, 0, len(items))
	for _, job := range items {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			displayLabel(string(job.Status)),
			job.Model,
			truncate(job.Prompt, promptDisplayWidth),
			formatDisplayTime(job.CreatedAt),
			jobResult(job),
		})
	}
	return rows
}

func jobResult(job *jobs.Job) string {
	switch {
	case job.Status == jobs.StatusFailed:
		return truncate(job.ErrorMessage, promptDisplayWidth)
	case job.GLBPath != "":
		return job.GLBPath
	case job.ImagePath != "":
		return job.ImagePath
	default:
		return ""
	}
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= width {
		return value
	}
	return string(runes[:width-3]) + "..."
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
