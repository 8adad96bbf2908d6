package patient

import (
	"errors"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func validDraft() Draft {
	return NewDraft(fixedNow).With(func(d *Draft) {
		d.FirstName = "Ana"
		d.LastName = "Gomez"
		d.ClinicalRecordNumber = "HC-001"
		d.Birth.Weight = "3000"
	})
}

// completeDraft sets every field, including gated details whose flag is off.
func completeDraft() Draft {
	return Draft{
		FirstName:            "Ana María",
		LastName:             "Gómez",
		ClinicalRecordNumber: "HC-001",
		DocumentNumber:       "40.123.456",
		BraceletID:           "BR-77",
		Phone:                "+54 11 5555-0101",
		HealthInsurance:      "OSDE 210",
		Birth: Birth{
			Date:              "2024-03-10",
			Time:              "08:05",
			Sex:               SexFemale,
			Weight:            "3000,5",
			Length:            "49",
			HeadCircumference: "34.5",
			GestationalAge:    "39",
			Apgar:             "8/9",
			DaysOfLife:        "5",
			DeliveryMode:      DeliveryCesarean,
			Presentation:      PresentationBreech,
			AmnioticFluid:     FluidMeconium,
			MembraneRupture:   RuptureArtificial,
			Classification:    "AEG",
			Origin:            "Delivery room",
		},
		CareTeam: CareTeam{
			AdmissionSector: "Joint accommodation",
			Obstetrician:    "Dr. Ruiz",
			Nurse:           "L. Paz",
			Neonatologist:   "Dr. Sosa",
		},
		Screening: Screening{
			HepatitisB:             Vaccination{Applied: true, Lot: "HB-2231", Date: "2024-03-10"},
			BCG:                    Vaccination{Applied: false, Lot: "BCG-9", Date: "2024-03-11"},
			Metabolic:              MetabolicScreening{Done: false, Protocol: "P-12", Date: "2024-03-12", Time: "09:00"},
			NewbornBloodGroup:      "O+",
			MaternalBloodGroup:     "A-",
			DirectAntiglobulinTest: "negative",
			Labs: Labs{
				TotalBilirubin:  "8.2",
				DirectBilirubin: "0.4",
				Hematocrit:      "52%",
				Other:           "Glucose 60 mg/dl\ttab \"quoted\" <b>",
			},
		},
		Discharge: &Discharge{
			Date:           "2024-03-12",
			Time:           "11:45",
			Weight:         "2850",
			ClinicalCourse: "Uneventful",
			Diagnoses:      "Healthy term newborn",
			Instructions:   "Pediatric visit in 48h",
			Observations:   "None",
			Nurse:          "L. Paz",
			Neonatologist:  "Dr. Sosa",
		},
		Maternal: Maternal{
			History:               "G2P1, gestational diabetes",
			SARSCoV2:              ResultNegative,
			Chagas:                ResultNegative,
			Toxoplasmosis:         ResultPositive,
			HIV:                   ResultNegative,
			VDRL:                  ResultNotDone,
			HepatitisB:            ResultNegative,
			GroupBStreptococcus:   "",
			AntibioticProphylaxis: "Ampicillin 2g",
		},
	}
}

func TestNewDraft_SeedsDatesFromNow(t *testing.T) {
	d := NewDraft(fixedNow)

	if d.Birth.Date != "2024-03-15" || d.Birth.Time != "10:30" {
		t.Errorf("unexpected birth instant %s %s", d.Birth.Date, d.Birth.Time)
	}
	if d.Birth.DaysOfLife != "0" {
		t.Errorf("expected days of life 0, got %q", d.Birth.DaysOfLife)
	}
	if d.Screening.HepatitisB.Date != "2024-03-15" || d.Screening.BCG.Date != "2024-03-15" {
		t.Error("expected vaccination dates seeded")
	}
	if d.Screening.Metabolic.Date != "2024-03-15" || d.Screening.Metabolic.Time != "10:30" {
		t.Error("expected metabolic screening seeded")
	}
	if d.Screening.HepatitisB.Applied || d.Screening.Metabolic.Done {
		t.Error("expected flags off")
	}
	if d.Discharge != nil {
		t.Error("expected no discharge")
	}
}

func TestDraft_WithLeavesReceiverUntouched(t *testing.T) {
	base := validDraft().WithDischarge(Discharge{Weight: "2850"})

	next := base.With(func(d *Draft) {
		d.FirstName = "Lucia"
		d.Discharge.Weight = "2900"
	})

	if base.FirstName != "Ana" {
		t.Errorf("receiver first name changed to %q", base.FirstName)
	}
	if base.Discharge.Weight != "2850" {
		t.Errorf("receiver discharge shared with copy: %q", base.Discharge.Weight)
	}
	if next.FirstName != "Lucia" || next.Discharge.Weight != "2900" {
		t.Errorf("edit not applied: %+v", next)
	}
}

func TestDraft_WithBirthRecomputesDaysOfLife(t *testing.T) {
	d := validDraft().WithBirth("2024-03-10", "08:00", fixedNow)
	if d.Birth.DaysOfLife != "5" {
		t.Errorf("expected 5, got %q", d.Birth.DaysOfLife)
	}

	d = d.WithBirth("not a date", "08:00", fixedNow)
	if d.Birth.DaysOfLife != "" {
		t.Errorf("expected cleared snapshot, got %q", d.Birth.DaysOfLife)
	}
}

func TestDraft_Finalize(t *testing.T) {
	d := validDraft().With(func(d *Draft) {
		d.Birth.Date = "2024-03-13"
		d.Birth.Time = "11:00"
		d.Birth.DaysOfLife = "0"
	})

	final := d.Finalize(fixedNow)
	if final.Birth.DaysOfLife != "1" {
		t.Errorf("expected 1, got %q", final.Birth.DaysOfLife)
	}
	if d.Birth.DaysOfLife != "0" {
		t.Error("Finalize modified its receiver")
	}

	future := d.With(func(d *Draft) { d.Birth.Date = "2024-04-01" }).Finalize(fixedNow)
	if future.Birth.DaysOfLife != "0" {
		t.Errorf("expected stale snapshot kept for future birth, got %q", future.Birth.DaysOfLife)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(d *Draft)
		fields []string
	}{
		{"valid", func(d *Draft) {}, nil},
		{"missing names", func(d *Draft) {
			d.FirstName = ""
			d.LastName = ""
		}, []string{"first_name", "last_name"}},
		{"missing clinical record", func(d *Draft) { d.ClinicalRecordNumber = "" }, []string{"clinical_record_number"}},
		{"bad birth date", func(d *Draft) { d.Birth.Date = "15/03/2024" }, []string{"birth.date"}},
		{"bad birth time", func(d *Draft) { d.Birth.Time = "25:00" }, []string{"birth.time"}},
		{"blank birth date allowed", func(d *Draft) { d.Birth.Date = "" }, nil},
		{"bad lab result", func(d *Draft) { d.Maternal.HIV = "maybe" }, []string{"maternal.hiv"}},
		{"bad discharge date", func(d *Draft) { d.Discharge = &Discharge{Date: "yesterday"} }, []string{"discharge.date"}},
		{"valid discharge", func(d *Draft) { d.Discharge = &Discharge{Date: "2024-03-17", Time: "09:00"} }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(validDraft().With(tt.edit))
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			got := map[string]bool{}
			for _, f := range verr.Fields {
				got[f.Field] = true
			}
			for _, want := range tt.fields {
				if !got[want] {
					t.Errorf("expected field %q in %v", want, verr.Fields)
				}
			}
			if len(verr.Fields) != len(tt.fields) {
				t.Errorf("expected %d fields, got %v", len(tt.fields), verr.Fields)
			}
		})
	}
}

func TestDraft_FullName(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{"Ana", "Gomez", "Ana Gomez"},
		{"Ana", "", "Ana"},
		{"", "Gomez", "Gomez"},
		{"", "", ""},
	}
	for _, tt := range tests {
		d := Draft{FirstName: tt.first, LastName: tt.last}
		if got := d.FullName(); got != tt.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestValidate_CompleteDraft(t *testing.T) {
	if err := Validate(completeDraft()); err != nil {
		t.Fatalf("expected complete draft to be valid, got %v", err)
	}
}

func TestValidate_RejectsUnstorableText(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(d *Draft)
		field string
		rule  string
	}{
		{"invalid utf8 in labs", func(d *Draft) { d.Screening.Labs.Other = "a\xffb" }, "screening.labs.other", "utf8"},
		{"invalid utf8 in discharge", func(d *Draft) { d.Discharge = &Discharge{Observations: "\xc3"} }, "discharge.observations", "utf8"},
		{"nul in clinical record", func(d *Draft) { d.ClinicalRecordNumber = "A\x00B" }, "clinical_record_number", "nul"},
		{"invalid utf8 in lab result", func(d *Draft) { d.Maternal.HIV = LabResult("\xff") }, "maternal.hiv", "utf8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(validDraft().With(tt.edit))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.field && f.Rule == tt.rule {
					found = true
				}
			}
			if !found {
				t.Errorf("expected %s (%s) in %v", tt.field, tt.rule, verr.Fields)
			}
		})
	}
}
