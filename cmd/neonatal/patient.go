package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ehr/neonatal/internal/domain/patient"
)

func patientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Manage patient records from the command line",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a patient from a JSON draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *patient.Service) error {
				d := svc.NewDraft()
				if err := json.Unmarshal(raw, &d); err != nil {
					return fmt.Errorf("decode draft: %w", err)
				}
				res, err := svc.Intake(ctx, d)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	createCmd.Flags().StringP("file", "f", "-", "JSON draft to read, - for stdin")
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *patient.Service) error {
				rec, err := svc.Get(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			number, _ := cmd.Flags().GetString("clinical-record-number")
			return withService(cmd, func(ctx context.Context, svc *patient.Service) error {
				items, err := svc.ListView(ctx, number)
				if err != nil {
					return err
				}
				renderList(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	listCmd.Flags().String("clinical-record-number", "", "Only list records with this clinical record number")
	cmd.AddCommand(listCmd)

	summaryCmd := &cobra.Command{
		Use:   "summary <id>",
		Short: "Print the clinical summary of a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return withService(cmd, func(ctx context.Context, svc *patient.Service) error {
				view, err := svc.Detail(ctx, id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), view)
				}
				renderSummary(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	summaryCmd.Flags().Bool("json", false, "Print the summary as JSON")
	cmd.AddCommand(summaryCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a patient record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withService(cmd, func(ctx context.Context, svc *patient.Service) error {
				return svc.Delete(ctx, id)
			})
		},
	})

	return cmd
}

// withService opens the configured store for the duration of fn.
// Notifications go to stderr.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *patient.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, _, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := newService(cfg, store, patient.NewWriterNotifier(cmd.ErrOrStderr()), logger)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(file)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderList(w io.Writer, items []patient.ListItem) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Clinical Record", "Birth Date", "Age", "Days of Life", "Discharged"})
	for _, it := range items {
		discharged := "no"
		if it.Discharged {
			discharged = "yes"
		}
		table.Append([]string{
			strconv.FormatInt(it.ID, 10),
			it.FullName,
			it.ClinicalRecordNumber,
			it.BirthDate,
			it.Age,
			it.DaysOfLife,
			discharged,
		})
	}
	table.Render()
}

func renderSummary(w io.Writer, v *patient.DetailView) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Section", "Field", "Value"})

	add := func(section, field, value string) {
		table.Append([]string{section, field, value})
	}

	add("Patient", "Name", v.FullName)
	add("Patient", "Clinical record", v.ClinicalRecordNumber)
	add("Patient", "Document", v.DocumentNumber)
	add("Patient", "Bracelet", v.BraceletID)
	add("Patient", "Phone", v.Phone)
	add("Patient", "Health insurance", v.HealthInsurance)
	add("Patient", "Registered", v.RegisteredAt)

	b := v.Birth
	add("Birth", "Date", b.Date)
	add("Birth", "Time", b.Time)
	add("Birth", "Sex", b.Sex)
	add("Birth", "Age", b.Age)
	add("Birth", "Days of life", b.DaysOfLife)
	add("Birth", "Days of life at intake", b.DaysOfLifeAtIntake)
	add("Birth", "Weight", b.Weight)
	add("Birth", "Length", b.Length)
	add("Birth", "Head circumference", b.HeadCircumference)
	add("Birth", "Gestational age", b.GestationalAge)
	add("Birth", "Apgar", b.Apgar)
	add("Birth", "Delivery", b.DeliveryMode)
	add("Birth", "Presentation", b.Presentation)
	add("Birth", "Amniotic fluid", b.AmnioticFluid)
	add("Birth", "Membrane rupture", b.MembraneRupture)
	add("Birth", "Classification", b.Classification)
	add("Birth", "Origin", b.Origin)

	ct := v.CareTeam
	add("Care team", "Admission sector", ct.AdmissionSector)
	add("Care team", "Obstetrician", ct.Obstetrician)
	add("Care team", "Nurse", ct.Nurse)
	add("Care team", "Neonatologist", ct.Neonatologist)

	s := v.Screening
	add("Screening", "Hepatitis B vaccine", vaccinationLine(s.HepatitisB))
	add("Screening", "BCG vaccine", vaccinationLine(s.BCG))
	add("Screening", "Metabolic screening", s.Metabolic.Status+" "+s.Metabolic.Protocol+" "+s.Metabolic.Date+" "+s.Metabolic.Time)
	add("Screening", "Newborn blood group", s.NewbornBloodGroup)
	add("Screening", "Maternal blood group", s.MaternalBloodGroup)
	add("Screening", "Direct antiglobulin test", s.DirectAntiglobulinTest)
	add("Screening", "Total bilirubin", s.TotalBilirubin)
	add("Screening", "Direct bilirubin", s.DirectBilirubin)
	add("Screening", "Hematocrit", s.Hematocrit)
	add("Screening", "Other labs", s.OtherLabs)

	add("Maternal", "History", v.Maternal.History)
	for _, r := range v.Maternal.Results {
		add("Maternal", r.Test, r.Result)
	}
	add("Maternal", "Antibiotic prophylaxis", v.Maternal.AntibioticProphylaxis)

	d := v.Discharge
	add("Discharge", "Date", d.Date)
	add("Discharge", "Time", d.Time)
	add("Discharge", "Weight", d.Weight)
	add("Discharge", "Weight change", d.WeightChange)
	add("Discharge", "Clinical course", d.ClinicalCourse)
	add("Discharge", "Diagnoses", d.Diagnoses)
	add("Discharge", "Instructions", d.Instructions)
	add("Discharge", "Observations", d.Observations)
	add("Discharge", "Nurse", d.Nurse)
	add("Discharge", "Neonatologist", d.Neonatologist)

	table.Render()
}

func vaccinationLine(v patient.VaccinationView) string {
	return v.Status + " " + v.Lot + " " + v.Date
}
