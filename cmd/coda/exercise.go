package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/felixgeelhaar/coda/internal/engine"
	"github.com/felixgeelhaar/coda/internal/factory"
	"github.com/felixgeelhaar/coda/internal/strategy"
	"github.com/spf13/cobra"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the exercise types the daemon can generate",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var res struct {
			Types []domain.ExerciseType `json:"types"`
		}
		if err := c.get("/v1/types", &res); err != nil {
			return err
		}
		for _, t := range res.Types {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <type>",
	Short: "Generate an exercise",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := paramsFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		c, err := connect(cmd)
		if err != nil {
			return err
		}

		var ex domain.Exercise
		if err := c.post("/v1/exercises", p, &ex); err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), ex)
		}
		printExercise(cmd.OutOrStdout(), &ex)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <exercise-id>",
	Short: "Show a generated exercise",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var ex domain.Exercise
		if err := c.get("/v1/exercises/"+url.PathEscape(args[0]), &ex); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), ex)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <exercise-id>",
	Short: "Grade a response to an exercise",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := responseFromFlags(cmd)
		if err != nil {
			return err
		}
		c, err := connect(cmd)
		if err != nil {
			return err
		}

		var res domain.EvaluationResult
		if err := c.post("/v1/exercises/"+url.PathEscape(args[0])+"/evaluate", resp, &res); err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), &res)
		return nil
	},
}

var conceptCmd = &cobra.Command{
	Use:   "concept <id>",
	Short: "Explain a concept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var d domain.ConceptDetails
		if err := c.get("/v1/concepts/"+url.PathEscape(args[0]), &d); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s, difficulty %.2f)\n", d.Concept.Text, d.Concept.Level, d.Concept.Difficulty)
		if d.Explanation != "" {
			fmt.Fprintf(out, "\n%s\n", d.Explanation)
		}
		printList(out, "Examples", d.Examples)
		printList(out, "Synonyms", d.Synonyms)
		printList(out, "Contexts", d.Contexts)
		printList(out, "Grammar", d.GrammarNotes)
		return nil
	},
}

var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "Search the concept catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for _, name := range []string{"level", "q"} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				q.Set(name, v)
			}
		}
		if cats, _ := cmd.Flags().GetStringSlice("category"); len(cats) > 0 {
			q.Set("category", strings.Join(cats, ","))
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		var res struct {
			Concepts []domain.Concept `json:"concepts"`
			Count    int              `json:"count"`
		}
		if err := c.get("/v1/concepts?"+q.Encode(), &res); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-20s  %-20s  %-5s  %-10s  %s\n", "ID", "Text", "Level", "Difficulty", "Categories")
		fmt.Fprintln(out, strings.Repeat("─", 80))
		for _, co := range res.Concepts {
			fmt.Fprintf(out, "%-20s  %-20s  %-5s  %-10.2f  %s\n",
				co.ID, co.Text, co.Level, co.Difficulty, strings.Join(co.Categories, ", "))
		}
		fmt.Fprintf(out, "\n%d concepts\n", res.Count)
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.String("level", "", "CECRL level (A1..C2)")
	f.Float64("difficulty", 0.5, "Difficulty in [0,1]")
	f.StringSlice("focus", nil, "Concept categories to favour")
	f.StringSlice("concept", nil, "Concept IDs to build from")
	f.Float64("skill", -1, "Learner skill estimate in [0,1]")
	f.Int("options", 0, "Choices for multiple choice")
	f.Int("pairs", 0, "Pairs for drag and drop")
	f.Int("blanks", 0, "Blanks for fill in the blank")
	f.Float64("threshold", 0, "Similarity threshold for text entry")
	f.String("strategy", "", "Generator selection strategy")
	f.Bool("fresh", false, "Bypass the exercise cache")
	f.Bool("json", false, "Print the exercise as JSON")

	f = evaluateCmd.Flags()
	f.String("option", "", "Chosen option ID")
	f.Int("index", -1, "Chosen option position")
	f.StringToString("pair", nil, "Drag and drop placement item=target")
	f.StringArray("blank", nil, "Answer for the next blank (repeat in order)")
	f.String("text", "", "Typed answer")
	f.StringToString("criteria", nil, "Rubric scores name=0.8")
	f.StringToString("metric", nil, "Signing metric scores name=0.8")

	f = conceptsCmd.Flags()
	f.String("level", "", "CECRL level (A1..C2)")
	f.StringSlice("category", nil, "Categories to match")
	f.String("q", "", "Text to search for")
	f.Int("limit", 20, "Maximum results")
}

func paramsFromFlags(cmd *cobra.Command, typ string) (engine.Params, error) {
	f := cmd.Flags()
	level, _ := f.GetString("level")
	difficulty, _ := f.GetFloat64("difficulty")
	focus, _ := f.GetStringSlice("focus")
	concepts, _ := f.GetStringSlice("concept")
	skill, _ := f.GetFloat64("skill")
	options, _ := f.GetInt("options")
	pairs, _ := f.GetInt("pairs")
	blanks, _ := f.GetInt("blanks")
	threshold, _ := f.GetFloat64("threshold")
	strat, _ := f.GetString("strategy")
	fresh, _ := f.GetBool("fresh")

	p := engine.Params{
		Type:       domain.ExerciseType(typ),
		Level:      domain.CECRLLevel(strings.ToUpper(level)),
		Difficulty: difficulty,
		FocusAreas: focus,
		ConceptIDs: concepts,
		Options: strategy.Options{
			OptionCount: options,
			PairCount:   pairs,
			BlankCount:  blanks,
			Threshold:   threshold,
		},
		Strategy: factory.Strategy(strat),
		Fresh:    fresh,
	}
	if skill >= 0 {
		p.SkillEstimate = &skill
	}
	return p, p.Validate()
}

func responseFromFlags(cmd *cobra.Command) (domain.Response, error) {
	f := cmd.Flags()
	option, _ := f.GetString("option")
	index, _ := f.GetInt("index")
	pairs, _ := f.GetStringToString("pair")
	blanks, _ := f.GetStringArray("blank")
	text, _ := f.GetString("text")
	criteria, _ := f.GetStringToString("criteria")
	metrics, _ := f.GetStringToString("metric")

	resp := domain.Response{
		OptionID: option,
		Pairs:    pairs,
		Blanks:   blanks,
		Text:     text,
	}
	if index >= 0 {
		resp.OptionIndex = &index
	}
	var err error
	if resp.Criteria, err = parseScores("criteria", criteria); err != nil {
		return resp, err
	}
	if resp.Metrics, err = parseScores("metric", metrics); err != nil {
		return resp, err
	}
	return resp, nil
}

func parseScores(field string, raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return nil, domain.NewValidationError(field, "%s=%s is not a score in [0,1]", k, v)
		}
		out[k] = f
	}
	return out, nil
}

func printExercise(w io.Writer, ex *domain.Exercise) {
	fmt.Fprintf(w, "Exercise %s\n", ex.ID)
	fmt.Fprintf(w, "Type:       %s\n", ex.Type)
	fmt.Fprintf(w, "Level:      %s\n", ex.Level)
	fmt.Fprintf(w, "Difficulty: %s %.0f%%\n", renderProgressBar(ex.Difficulty, 20), ex.Difficulty*100)
	if ex.TimeLimit > 0 {
		fmt.Fprintf(w, "Time limit: %ds\n", ex.TimeLimit)
	}
	fmt.Fprintln(w)

	c := ex.Content
	switch {
	case c.MultipleChoice != nil:
		fmt.Fprintln(w, c.MultipleChoice.Question)
		for i, o := range c.MultipleChoice.Options {
			fmt.Fprintf(w, "  %d) %s  [%s]\n", i+1, o.Text, o.ID)
		}
	case c.DragDrop != nil:
		fmt.Fprintln(w, c.DragDrop.Instructions)
		for _, it := range c.DragDrop.Items {
			fmt.Fprintf(w, "  item   %s  [%s]\n", it.Text, it.ID)
		}
		for _, tg := range c.DragDrop.Targets {
			fmt.Fprintf(w, "  target %s  [%s]\n", tg.Text, tg.ID)
		}
	case c.FillBlank != nil:
		fmt.Fprintln(w, c.FillBlank.Text)
		if len(c.FillBlank.Options) > 0 {
			fmt.Fprintf(w, "  words: %s\n", strings.Join(c.FillBlank.Options, ", "))
		}
	case c.TextEntry != nil:
		fmt.Fprintln(w, c.TextEntry.Prompt)
	case c.VideoResponse != nil:
		fmt.Fprintln(w, c.VideoResponse.Phrase)
		fmt.Fprintln(w, c.VideoResponse.Instructions)
	case c.SigningPractice != nil:
		fmt.Fprintf(w, "Sign %q %d times\n", c.SigningPractice.Sign, c.SigningPractice.Repetitions)
		for _, st := range c.SigningPractice.Steps {
			fmt.Fprintf(w, "  %d. %s\n", st.Order, st.Instruction)
		}
	}
	printList(w, "Hints", ex.Hints)
}

func printResult(w io.Writer, res *domain.EvaluationResult) {
	verdict := "✗ incorrect"
	if res.Correct {
		verdict = "✓ correct"
	}
	fmt.Fprintf(w, "%s  score %s %.0f%%\n", verdict, renderProgressBar(res.Score, 20), res.Score*100)
	if res.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", res.Explanation)
	}
	if fb := res.Feedback; !fb.IsEmpty() {
		printList(w, "Strengths", fb.Strengths)
		printList(w, "To improve", fb.Improvements)
		printList(w, "Next steps", fb.NextSteps)
	}
	printList(w, "Suggestions", res.Suggestions)
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
