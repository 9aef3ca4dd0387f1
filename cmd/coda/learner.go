package main

import (
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"

	"github.com/felixgeelhaar/coda/internal/coda"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/evolution"
	"github.com/spf13/cobra"
)

var learnerCmd = &cobra.Command{
	Use:     "learner",
	Aliases: []string{"coda"},
	Short:   "Manage virtual learners",
}

var learnerCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a virtual learner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("level")
		mentor, _ := cmd.Flags().GetString("mentor")

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var st coda.State
		err = c.post("/v1/coda", coda.CreateRequest{
			Name:     args[0],
			MentorID: mentor,
			Level:    domain.CECRLLevel(strings.ToUpper(level)),
		}, &st)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) at %s\n", st.Name, st.ID, st.Level)
		return nil
	},
}

var learnerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List virtual learners",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var res struct {
			Codas []string `json:"codas"`
		}
		if err := c.get("/v1/coda", &res); err != nil {
			return err
		}
		for _, id := range res.Codas {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var learnerShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a learner's level, mood and metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var st coda.State
		if err := c.get("/v1/coda/"+url.PathEscape(args[0]), &st); err != nil {
			return err
		}
		printState(cmd.OutOrStdout(), &st)
		return nil
	},
}

var learnerSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start or end a learning session",
}

var learnerSessionStartCmd = &cobra.Command{
	Use:   "start <learner-id>",
	Short: "Start a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var sess coda.Session
		if err := c.post("/v1/coda/"+url.PathEscape(args[0])+"/sessions", nil, &sess); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s started at %s\n", sess.ID, sess.LevelAtStart)
		return nil
	},
}

var learnerSessionEndCmd = &cobra.Command{
	Use:   "end <learner-id> <session-id>",
	Short: "End a session and show its growth",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var sess coda.Session
		path := fmt.Sprintf("/v1/coda/%s/sessions/%s/end", url.PathEscape(args[0]), url.PathEscape(args[1]))
		if err := c.post(path, nil, &sess); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Session %s: %d interactions, level %s -> %s\n",
			sess.ID, sess.Interactions, sess.LevelAtStart, sess.LevelAtEnd)
		metrics := make([]evolution.Metric, 0, len(sess.Growth))
		for m := range sess.Growth {
			metrics = append(metrics, m)
		}
		slices.Sort(metrics)
		for _, m := range metrics {
			fmt.Fprintf(out, "  %-26s %+.3f\n", m, sess.Growth[m])
		}
		return nil
	},
}

var learnerInteractCmd = &cobra.Command{
	Use:   "interact <learner-id>",
	Short: "Record a practice result in the active session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		conceptID, _ := f.GetString("concept")
		method, _ := f.GetString("method")
		score, _ := f.GetFloat64("score")
		cats, _ := f.GetStringSlice("category")
		challenges, _ := f.GetStringSlice("challenge")

		in := coda.Interaction{
			ConceptID:  conceptID,
			Categories: cats,
			Method:     domain.ExerciseType(method),
			Score:      score,
			Challenges: challenges,
		}
		if err := in.Validate(); err != nil {
			return err
		}

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var res coda.InteractionResult
		if err := c.post("/v1/coda/"+url.PathEscape(args[0])+"/interactions", in, &res); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Level %s, mood %s\n", res.State.Level, res.State.Mood)
		if res.LevelUp {
			fmt.Fprintln(out, "★ Level up!")
		}
		for _, ev := range res.Events {
			fmt.Fprintf(out, "  %s: %s %.2f -> %.2f\n", ev.Type, ev.Metric, ev.Previous, ev.Value)
		}
		return nil
	},
}

func init() {
	learnerCreateCmd.Flags().String("level", "", "Starting level (default A1)")
	learnerCreateCmd.Flags().String("mentor", "", "Mentor ID")

	f := learnerInteractCmd.Flags()
	f.String("concept", "", "Concept practised")
	f.String("method", string(domain.TypeMultipleChoice), "Exercise type used")
	f.Float64("score", 0, "Result in [0,1]")
	f.StringSlice("category", nil, "Concept categories")
	f.StringSlice("challenge", nil, "Difficulties observed")

	learnerSessionCmd.AddCommand(learnerSessionStartCmd, learnerSessionEndCmd)
	learnerCmd.AddCommand(learnerCreateCmd, learnerListCmd, learnerShowCmd, learnerSessionCmd, learnerInteractCmd)
}

func printState(w io.Writer, st *coda.State) {
	fmt.Fprintf(w, "%s (%s)\n", st.Name, st.ID)
	fmt.Fprintf(w, "Level:    %s\n", st.Level)
	fmt.Fprintf(w, "Mood:     %s (%+.2f)\n", st.Mood, st.Valence)
	fmt.Fprintf(w, "Sessions: %d completed", st.SessionsCompleted)
	if st.ActiveSessionID != "" {
		fmt.Fprintf(w, ", active %s", st.ActiveSessionID)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "\nMetrics")
	fmt.Fprintln(w, "-------")
	for _, m := range evolution.AllMetrics() {
		v := st.Metrics[m]
		fmt.Fprintf(w, "%-26s %s %.0f%%\n", m, renderProgressBar(v, 20), v*100)
	}
}
