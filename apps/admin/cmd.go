package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/grade"
	"github.com/trezcool/darasa/core/grading"
	"github.com/trezcool/darasa/storage/database"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db   *sqlx.DB
	conf *core.Config

	gradingSvc grading.Service
	attSvc     attendance.Service
	gradeSvc   grade.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createdb                        - create the application database if it does not exist")
	fmt.Println("  migrate COMMAND [ARGS]          - run a migration command (up, down, status, ...)")
	fmt.Println("  gradebook -subject SUBJECT_ID   - print a subject's gradebook")
	fmt.Println("  attendance -subject SUBJECT_ID  - print a subject's attendance day summaries")
	fmt.Println("  grades -student STUDENT_ID      - print a student's final grades and per-period averages")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	gradebookCmd := flag.NewFlagSet("gradebook", flag.ExitOnError)
	gradebookSubject := gradebookCmd.String("subject", "", "The subject ID to print the gradebook for.")

	attendanceCmd := flag.NewFlagSet("attendance", flag.ExitOnError)
	attendanceSubject := attendanceCmd.String("subject", "", "The subject ID to print attendance summaries for.")

	gradesCmd := flag.NewFlagSet("grades", flag.ExitOnError)
	gradesStudent := gradesCmd.String("student", "", "The student ID to print final grades for.")

	switch args[1] {
	case "createdb":
		return database.CreateIfNotExist(cli.conf)
	case "migrate":
		return cli.migrate(args[2:])
	case "gradebook":
		if err := gradebookCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gradebookSubject == "" {
			gradebookCmd.Usage()
			return errHelp
		}
		return cli.printGradebook(*gradebookSubject)
	case "attendance":
		if err := attendanceCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *attendanceSubject == "" {
			attendanceCmd.Usage()
			return errHelp
		}
		return cli.printAttendance(*attendanceSubject)
	case "grades":
		if err := gradesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *gradesStudent == "" {
			gradesCmd.Usage()
			return errHelp
		}
		return cli.printGrades(*gradesStudent)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) printGradebook(subjectID string) error {
	gb, err := cli.gradingSvc.Gradebook(context.Background(), subjectID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	_, _ = fmt.Fprintf(w, "subject %s (weights: %d%%)\n", gb.Schema.SubjectID, gb.WeightSum)
	_, _ = fmt.Fprint(w, "student")
	for _, comp := range gb.Schema.Components {
		_, _ = fmt.Fprintf(w, "\t%s (%d%%)", comp.Name, comp.Weight)
	}
	_, _ = fmt.Fprint(w, "\toverall\n")

	students := make([]string, 0, len(gb.Results))
	for studentID := range gb.Results {
		students = append(students, studentID)
	}
	sort.Strings(students)

	for _, studentID := range students {
		res := gb.Results[studentID]
		_, _ = fmt.Fprint(w, studentID)
		for _, comp := range gb.Schema.Components {
			cr, _ := res.Component(comp.ID)
			_, _ = fmt.Fprintf(w, "\t%s", cr)
		}
		_, _ = fmt.Fprintf(w, "\t%s\n", res.Overall)
	}
	return nil
}

func (cli *commandLine) printGrades(studentID string) error {
	ctx := context.Background()
	grades, err := cli.gradeSvc.ListForStudent(ctx, studentID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	_, _ = fmt.Fprint(w, "school year\tperiod\tsubject\tgrade\n")
	periods := make(map[[2]string]struct{})
	for _, g := range grades {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", g.SchoolYear, g.Period, g.SubjectID, g.Value)
		periods[[2]string{g.SchoolYear, g.Period}] = struct{}{}
	}

	keys := make([][2]string, 0, len(periods))
	for key := range periods {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, key := range keys {
		avg, err := cli.gradeSvc.AverageAcrossSubjects(ctx, studentID, key[1], key[0])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\taverage (%d subjects)\t%s\n", key[0], key[1], avg.Count, avg)
	}
	return nil
}

func (cli *commandLine) printAttendance(subjectID string) error {
	sums, err := cli.attSvc.DaySummary(context.Background(), subjectID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	_, _ = fmt.Fprint(w, "date\tpresent\tabsent\tlate\texcused\n")
	for _, sum := range sums {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			sum.Date.Format("2006-01-02"), sum.Present, sum.Absent, sum.Late, sum.Excused)
	}
	return nil
}
