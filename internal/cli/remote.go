package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/progress"
)

var (
	flagServer   string
	flagInterval time.Duration
	flagSaveTo   string
	flagWatch    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file.md>",
	Short: "Upload a markdown newsletter to a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(flagServer)
		job, err := c.submit(cmd.Context(), args[0], flagGeminiAPIKey)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), job.ID)
		if flagWatch {
			return watch(cmd, c, job.ID)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show a job's status on a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := newAPIClient(flagServer).status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderJob(job, 40))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <job_id>",
	Short: "Follow a job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd, newAPIClient(flagServer), args[0])
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <job_id>",
	Short: "Download a finished podcast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagSaveTo
		if path == "" {
			path = "podcast_" + args[0] + ".wav"
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		n, err := newAPIClient(flagServer).download(cmd.Context(), args[0], f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%.1f MB)\n", path, float64(n)/(1024*1024))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{submitCmd, statusCmd, watchCmd, downloadCmd} {
		c.Flags().StringVarP(&flagServer, "server", "s", "http://localhost:8000", "Base URL of the podcaster server")
		rootCmd.AddCommand(c)
	}
	submitCmd.Flags().StringVar(&flagGeminiAPIKey, "gemini-api-key", "", "Send your own Gemini key with the request")
	submitCmd.Flags().BoolVarP(&flagWatch, "watch", "w", false, "Follow the job after submitting")
	submitCmd.Flags().DurationVar(&flagInterval, "interval", 2*time.Second, "Polling interval")
	watchCmd.Flags().DurationVar(&flagInterval, "interval", 2*time.Second, "Polling interval")
	downloadCmd.Flags().StringVarP(&flagSaveTo, "output", "o", "", "Destination file")
}

func watch(cmd *cobra.Command, c *apiClient, id string) error {
	m := newWatchModel(cmd.Context(), c, id, flagInterval)
	final, err := tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithOutput(cmd.OutOrStdout())).Run()
	if err != nil {
		return err
	}
	wm := final.(watchModel)
	switch {
	case wm.err != nil:
		return wm.err
	case wm.job != nil && wm.job.Status == jobs.StatusFailed:
		return fmt.Errorf("job %s failed: %s", id, wm.job.Error)
	}
	return nil
}

type statusMsg struct {
	job *jobs.Job
	err error
}

type tickMsg time.Time

// watchModel polls a job's status until it is terminal.
type watchModel struct {
	ctx      context.Context
	client   *apiClient
	id       string
	interval time.Duration
	width    int
	job      *jobs.Job
	err      error
	// transient is the last polling error that will be retried.
	transient error
}

func newWatchModel(ctx context.Context, c *apiClient, id string, interval time.Duration) watchModel {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return watchModel{ctx: ctx, client: c, id: id, interval: interval, width: 80}
}

func (m watchModel) Init() tea.Cmd { return m.fetch() }

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
		defer cancel()
		job, err := m.client.status(ctx, m.id)
		return statusMsg{job: job, err: err}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "q" || s == "ctrl+c" || s == "esc" {
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statusMsg:
		var ae *apiError
		if errors.As(msg.err, &ae) && ae.Code == http.StatusNotFound {
			m.err = msg.err
			return m, tea.Quit
		}
		m.transient = msg.err
		if msg.job != nil {
			m.job = msg.job
			if m.job.Status.Terminal() {
				return m, tea.Quit
			}
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
	case tickMsg:
		return m, m.fetch()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(headerBorder.Render(titleStyle.Render("podcast " + m.id)))
	b.WriteString("\n")
	if m.job == nil {
		b.WriteString(dimStyle.Render("waiting for status..."))
	} else {
		b.WriteString(renderJob(m.job, min(max(m.width-20, 20), 60)))
	}
	if m.transient != nil {
		b.WriteString("\n" + warnStyle.Render("retrying: "+m.transient.Error()))
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n" + dimStyle.Render("q to stop watching") + "\n")
	return b.String()
}

// renderJob formats a job record as labeled lines with a progress bar.
func renderJob(job *jobs.Job, barWidth int) string {
	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value)
	}
	lines := []string{
		row("status", string(job.Status)),
		row("progress", fmt.Sprintf("%s %3d%%", progress.RenderBar(job.Progress, barWidth), int(job.Progress*100))),
	}
	if job.ChunkCount > 0 {
		lines = append(lines, row("scripts", fmt.Sprintf("%d/%d", job.ScriptDone, job.ChunkCount)))
	}
	if job.PartCount > 0 {
		lines = append(lines, row("audio", fmt.Sprintf("%d/%d", job.TTSDone, job.PartCount)))
	}
	for _, w := range job.Warnings {
		lines = append(lines, labelStyle.Render("warning")+warnStyle.Render(w))
	}
	if job.Error != "" {
		lines = append(lines, labelStyle.Render("error")+errorStyle.Render(job.Error))
	}
	if job.ResultURL != "" {
		lines = append(lines, row("url", job.ResultURL))
	}
	return strings.Join(lines, "\n")
}
