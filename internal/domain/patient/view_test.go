package patient

import (
	"testing"
	"time"
)

func TestBuildDetailView_Blanks(t *testing.T) {
	rec := &PatientRecord{
		ID:        3,
		CreatedAt: fixedNow,
		Draft: Draft{
			FirstName:            "Ana",
			LastName:             "Gomez",
			ClinicalRecordNumber: "HC-001",
		},
	}

	v := BuildDetailView(rec, fixedNow)

	checks := map[string]string{
		"document":      v.DocumentNumber,
		"birth date":    v.Birth.Date,
		"birth time":    v.Birth.Time,
		"weight":        v.Birth.Weight,
		"delivery":      v.Birth.DeliveryMode,
		"nurse":         v.CareTeam.Nurse,
		"blood group":   v.Screening.NewbornBloodGroup,
		"bilirubin":     v.Screening.TotalBilirubin,
		"history":       v.Maternal.History,
		"weight change": v.Discharge.WeightChange,
		"discharge":     v.Discharge.Date,
	}
	for name, got := range checks {
		if got != "—" {
			t.Errorf("%s: expected placeholder, got %q", name, got)
		}
	}
	if v.Birth.Sex != "Not specified" {
		t.Errorf("unexpected sex %q", v.Birth.Sex)
	}
	if v.Birth.Age != "invalid date" || v.Birth.DaysOfLife != "invalid date" {
		t.Errorf("unexpected age %q / %q", v.Birth.Age, v.Birth.DaysOfLife)
	}
	if v.Discharge.Recorded {
		t.Error("expected discharge not recorded")
	}
	if v.RegisteredAt != "15/03/2024 10:30" {
		t.Errorf("unexpected registered at %q", v.RegisteredAt)
	}
}

func TestBuildDetailView_Full(t *testing.T) {
	d := validDraft().With(func(d *Draft) {
		d.Birth.Date = "2024-01-10"
		d.Birth.Time = "06:15"
		d.Birth.DaysOfLife = "0"
		d.Birth.Sex = SexFemale
		d.Birth.DeliveryMode = DeliveryCesarean
		d.Birth.Presentation = "Breech"
		d.Birth.AmnioticFluid = "bloody"
		d.Screening.HepatitisB = Vaccination{Applied: true, Lot: "L-77", Date: "2024-01-10"}
		d.Screening.BCG = Vaccination{Applied: false, Lot: "ignored", Date: "2024-01-10"}
		d.Screening.Metabolic = MetabolicScreening{Done: true, Protocol: "P-1", Date: "2024-01-12", Time: "09:00"}
		d.Maternal.HIV = ResultNegative
		d.Maternal.VDRL = ResultPositive
		d.Maternal.Chagas = ResultNotDone
	}).WithDischarge(Discharge{Date: "2024-01-13", Weight: "2850", Nurse: "R. Diaz"})

	v := BuildDetailView(&PatientRecord{ID: 1, CreatedAt: fixedNow, Draft: d}, fixedNow)

	if v.Birth.Date != "10/01/2024" || v.Birth.Time != "06:15" {
		t.Errorf("unexpected birth %s %s", v.Birth.Date, v.Birth.Time)
	}
	if v.Birth.Sex != "Female" || v.Birth.DeliveryMode != "Cesarean section" {
		t.Errorf("unexpected labels %q %q", v.Birth.Sex, v.Birth.DeliveryMode)
	}
	if v.Birth.Presentation != "Breech" || v.Birth.AmnioticFluid != "bloody" {
		t.Errorf("unexpected free-text labels %q %q", v.Birth.Presentation, v.Birth.AmnioticFluid)
	}
	if v.Birth.Age != "2 months and 5 days" {
		t.Errorf("unexpected age %q", v.Birth.Age)
	}

	hb := v.Screening.HepatitisB
	if hb.Status != "Applied" || hb.Lot != "L-77" || hb.Date != "10/01/2024" {
		t.Errorf("unexpected hepatitis B view %+v", hb)
	}
	bcg := v.Screening.BCG
	if bcg.Status != "Not applied" || bcg.Lot != "—" || bcg.Date != "—" {
		t.Errorf("expected gated BCG detail hidden, got %+v", bcg)
	}
	if m := v.Screening.Metabolic; m.Status != "Done" || m.Protocol != "P-1" || m.Time != "09:00" {
		t.Errorf("unexpected metabolic view %+v", m)
	}

	results := map[string]string{}
	for _, r := range v.Maternal.Results {
		results[r.Test] = r.Result
	}
	want := map[string]string{"HIV": "Negative", "VDRL": "Positive", "Chagas": "Not done", "SARS-CoV-2": "Not done"}
	for test, result := range want {
		if results[test] != result {
			t.Errorf("%s: expected %q, got %q", test, result, results[test])
		}
	}

	if !v.Discharge.Recorded || v.Discharge.WeightChange != "-5.00%" || v.Discharge.Nurse != "R. Diaz" {
		t.Errorf("unexpected discharge %+v", v.Discharge)
	}
	if v.Discharge.Neonatologist != "—" {
		t.Errorf("expected placeholder neonatologist, got %q", v.Discharge.Neonatologist)
	}
}

func TestSexLabel(t *testing.T) {
	tests := map[string]string{
		"male":     "Male",
		"F":        "Female",
		"m":        "Male",
		"other":    "Other",
		"":         "Not specified",
		"  ":       "Not specified",
		"intersex": "intersex",
	}
	for in, want := range tests {
		if got := SexLabel(in); got != want {
			t.Errorf("SexLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildListItem(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	rec := &PatientRecord{ID: 5, CreatedAt: now, Draft: validDraft().With(func(d *Draft) {
		d.Birth.Date = "2024-03-13"
		d.Birth.Time = "09:00"
	})}

	item := BuildListItem(rec, now)
	if item.ID != 5 || item.FullName != "Ana Gomez" || item.BirthDate != "13/03/2024" {
		t.Errorf("unexpected item %+v", item)
	}
	if item.Age != "2 days" || item.DaysOfLife != "2" || item.Discharged {
		t.Errorf("unexpected age fields %+v", item)
	}
}
