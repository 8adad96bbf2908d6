package patient

import (
	"strings"
	"time"

	"github.com/ehr/neonatal/pkg/clinicaldate"
)

// DetailView is the read-only summary of one record, with every value ready
// for display. It backs the printable clinical summary.
type DetailView struct {
	ID                   int64         `json:"id"`
	FullName             string        `json:"full_name"`
	ClinicalRecordNumber string        `json:"clinical_record_number"`
	DocumentNumber       string        `json:"document_number"`
	BraceletID           string        `json:"bracelet_id"`
	Phone                string        `json:"phone"`
	HealthInsurance      string        `json:"health_insurance"`
	RegisteredAt         string        `json:"registered_at"`
	Birth                BirthView     `json:"birth"`
	CareTeam             CareTeam      `json:"care_team"`
	Screening            ScreeningView `json:"screening"`
	Maternal             MaternalView  `json:"maternal"`
	Discharge            DischargeView `json:"discharge"`
}

type BirthView struct {
	Date               string `json:"date"`
	Time               string `json:"time"`
	Sex                string `json:"sex"`
	Age                string `json:"age"`
	DaysOfLife         string `json:"days_of_life"`
	DaysOfLifeAtIntake string `json:"days_of_life_at_intake"`
	Weight             string `json:"weight"`
	Length             string `json:"length"`
	HeadCircumference  string `json:"head_circumference"`
	GestationalAge     string `json:"gestational_age"`
	Apgar              string `json:"apgar"`
	DeliveryMode       string `json:"delivery_mode"`
	Presentation       string `json:"presentation"`
	AmnioticFluid      string `json:"amniotic_fluid"`
	MembraneRupture    string `json:"membrane_rupture"`
	Classification     string `json:"classification"`
	Origin             string `json:"origin"`
}

type VaccinationView struct {
	Status string `json:"status"`
	Lot    string `json:"lot"`
	Date   string `json:"date"`
}

type MetabolicView struct {
	Status   string `json:"status"`
	Protocol string `json:"protocol"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type ScreeningView struct {
	HepatitisB             VaccinationView `json:"hepatitis_b"`
	BCG                    VaccinationView `json:"bcg"`
	Metabolic              MetabolicView   `json:"metabolic"`
	NewbornBloodGroup      string          `json:"newborn_blood_group"`
	MaternalBloodGroup     string          `json:"maternal_blood_group"`
	DirectAntiglobulinTest string          `json:"direct_antiglobulin_test"`
	TotalBilirubin         string          `json:"total_bilirubin"`
	DirectBilirubin        string          `json:"direct_bilirubin"`
	Hematocrit             string          `json:"hematocrit"`
	OtherLabs              string          `json:"other_labs"`
}

type LabResultView struct {
	Test   string `json:"test"`
	Result string `json:"result"`
}

type MaternalView struct {
	History               string          `json:"history"`
	Results               []LabResultView `json:"results"`
	AntibioticProphylaxis string          `json:"antibiotic_prophylaxis"`
}

// DischargeView is always present; Recorded is false before discharge and
// every value is then the placeholder.
type DischargeView struct {
	Recorded       bool   `json:"recorded"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Weight         string `json:"weight"`
	WeightChange   string `json:"weight_change"`
	ClinicalCourse string `json:"clinical_course"`
	Diagnoses      string `json:"diagnoses"`
	Instructions   string `json:"instructions"`
	Observations   string `json:"observations"`
	Nurse          string `json:"nurse"`
	Neonatologist  string `json:"neonatologist"`
}

// ListItem is one row of the patient index.
type ListItem struct {
	ID                   int64     `json:"id"`
	FullName             string    `json:"full_name"`
	ClinicalRecordNumber string    `json:"clinical_record_number"`
	BirthDate            string    `json:"birth_date"`
	Age                  string    `json:"age"`
	DaysOfLife           string    `json:"days_of_life"`
	Discharged           bool      `json:"discharged"`
	CreatedAt            time.Time `json:"created_at"`
}

var (
	// "m" and "f" are accepted from older records.
	sexLabels = map[string]string{
		SexMale:   "Male",
		"m":       "Male",
		SexFemale: "Female",
		"f":       "Female",
		SexOther:  "Other",
	}
	deliveryLabels = map[string]string{
		DeliveryVaginal:  "Vaginal delivery",
		DeliveryCesarean: "Cesarean section",
	}
	presentationLabels = map[string]string{
		PresentationCephalic:   "Cephalic",
		PresentationBreech:     "Breech",
		PresentationTransverse: "Transverse",
	}
	fluidLabels = map[string]string{
		FluidClear:    "Clear",
		FluidMeconium: "Meconium",
		FluidStained:  "Stained",
	}
	ruptureLabels = map[string]string{
		RuptureSpontaneous: "Spontaneous",
		RuptureArtificial:  "Artificial",
	}
)

// BuildDetailView derives the display view of rec as of now. Days of life
// are recomputed; the value frozen at intake is reported alongside.
func BuildDetailView(rec *PatientRecord, now time.Time) *DetailView {
	d := rec.Draft
	return &DetailView{
		ID:                   rec.ID,
		FullName:             orPlaceholder(d.FullName()),
		ClinicalRecordNumber: orPlaceholder(d.ClinicalRecordNumber),
		DocumentNumber:       orPlaceholder(d.DocumentNumber),
		BraceletID:           orPlaceholder(d.BraceletID),
		Phone:                orPlaceholder(d.Phone),
		HealthInsurance:      orPlaceholder(d.HealthInsurance),
		RegisteredAt:         rec.CreatedAt.In(now.Location()).Format(clinicaldate.DisplayLayout + " 15:04"),
		Birth:                birthView(d, now),
		CareTeam: CareTeam{
			AdmissionSector: orPlaceholder(d.CareTeam.AdmissionSector),
			Obstetrician:    orPlaceholder(d.CareTeam.Obstetrician),
			Nurse:           orPlaceholder(d.CareTeam.Nurse),
			Neonatologist:   orPlaceholder(d.CareTeam.Neonatologist),
		},
		Screening: screeningView(d.Screening),
		Maternal:  maternalView(d.Maternal),
		Discharge: dischargeView(d),
	}
}

// BuildListItem derives the index row of rec as of now.
func BuildListItem(rec *PatientRecord, now time.Time) ListItem {
	return ListItem{
		ID:                   rec.ID,
		FullName:             rec.FullName(),
		ClinicalRecordNumber: rec.ClinicalRecordNumber,
		BirthDate:            clinicaldate.FormatOptionalDate(rec.Birth.Date),
		Age:                  clinicaldate.CalculateAge(rec.Birth.Date, now),
		DaysOfLife:           clinicaldate.FormatDaysOfLife(rec.Birth.Date, rec.Birth.Time, now),
		Discharged:           rec.Discharged(),
		CreatedAt:            rec.CreatedAt,
	}
}

func birthView(d Draft, now time.Time) BirthView {
	b := d.Birth
	return BirthView{
		Date:               clinicaldate.FormatOptionalDate(b.Date),
		Time:               orPlaceholder(b.Time),
		Sex:                SexLabel(b.Sex),
		Age:                clinicaldate.CalculateAge(b.Date, now),
		DaysOfLife:         clinicaldate.FormatDaysOfLife(b.Date, b.Time, now),
		DaysOfLifeAtIntake: orPlaceholder(b.DaysOfLife),
		Weight:             orPlaceholder(b.Weight),
		Length:             orPlaceholder(b.Length),
		HeadCircumference:  orPlaceholder(b.HeadCircumference),
		GestationalAge:     orPlaceholder(b.GestationalAge),
		Apgar:              orPlaceholder(b.Apgar),
		DeliveryMode:       label(deliveryLabels, b.DeliveryMode),
		Presentation:       label(presentationLabels, b.Presentation),
		AmnioticFluid:      label(fluidLabels, b.AmnioticFluid),
		MembraneRupture:    label(ruptureLabels, b.MembraneRupture),
		Classification:     orPlaceholder(b.Classification),
		Origin:             orPlaceholder(b.Origin),
	}
}

func screeningView(s Screening) ScreeningView {
	return ScreeningView{
		HepatitisB:             vaccinationView(s.HepatitisB),
		BCG:                    vaccinationView(s.BCG),
		Metabolic:              metabolicView(s.Metabolic),
		NewbornBloodGroup:      orPlaceholder(s.NewbornBloodGroup),
		MaternalBloodGroup:     orPlaceholder(s.MaternalBloodGroup),
		DirectAntiglobulinTest: orPlaceholder(s.DirectAntiglobulinTest),
		TotalBilirubin:         orPlaceholder(s.Labs.TotalBilirubin),
		DirectBilirubin:        orPlaceholder(s.Labs.DirectBilirubin),
		Hematocrit:             orPlaceholder(s.Labs.Hematocrit),
		OtherLabs:              orPlaceholder(s.Labs.Other),
	}
}

// Lot and date are shown only for an applied vaccine.
func vaccinationView(v Vaccination) VaccinationView {
	if !v.Applied {
		return VaccinationView{
			Status: "Not applied",
			Lot:    clinicaldate.Placeholder,
			Date:   clinicaldate.Placeholder,
		}
	}
	return VaccinationView{
		Status: "Applied",
		Lot:    orPlaceholder(v.Lot),
		Date:   clinicaldate.FormatOptionalDate(v.Date),
	}
}

func metabolicView(m MetabolicScreening) MetabolicView {
	if !m.Done {
		return MetabolicView{
			Status:   "Not done",
			Protocol: clinicaldate.Placeholder,
			Date:     clinicaldate.Placeholder,
			Time:     clinicaldate.Placeholder,
		}
	}
	return MetabolicView{
		Status:   "Done",
		Protocol: orPlaceholder(m.Protocol),
		Date:     clinicaldate.FormatOptionalDate(m.Date),
		Time:     orPlaceholder(m.Time),
	}
}

func maternalView(m Maternal) MaternalView {
	return MaternalView{
		History: orPlaceholder(m.History),
		Results: []LabResultView{
			{Test: "SARS-CoV-2", Result: LabResultLabel(m.SARSCoV2)},
			{Test: "Chagas", Result: LabResultLabel(m.Chagas)},
			{Test: "Toxoplasmosis", Result: LabResultLabel(m.Toxoplasmosis)},
			{Test: "HIV", Result: LabResultLabel(m.HIV)},
			{Test: "VDRL", Result: LabResultLabel(m.VDRL)},
			{Test: "Hepatitis B", Result: LabResultLabel(m.HepatitisB)},
			{Test: "Group B Streptococcus", Result: LabResultLabel(m.GroupBStreptococcus)},
		},
		AntibioticProphylaxis: orPlaceholder(m.AntibioticProphylaxis),
	}
}

func dischargeView(d Draft) DischargeView {
	if d.Discharge == nil {
		p := clinicaldate.Placeholder
		return DischargeView{
			Date: p, Time: p, Weight: p, WeightChange: p,
			ClinicalCourse: p, Diagnoses: p, Instructions: p, Observations: p,
			Nurse: p, Neonatologist: p,
		}
	}
	dis := d.Discharge
	return DischargeView{
		Recorded:       true,
		Date:           clinicaldate.FormatOptionalDate(dis.Date),
		Time:           orPlaceholder(dis.Time),
		Weight:         orPlaceholder(dis.Weight),
		WeightChange:   clinicaldate.WeightChangePercentage(d.Birth.Weight, dis.Weight),
		ClinicalCourse: orPlaceholder(dis.ClinicalCourse),
		Diagnoses:      orPlaceholder(dis.Diagnoses),
		Instructions:   orPlaceholder(dis.Instructions),
		Observations:   orPlaceholder(dis.Observations),
		Nurse:          orPlaceholder(dis.Nurse),
		Neonatologist:  orPlaceholder(dis.Neonatologist),
	}
}

// SexLabel renders the stored sex value. Unknown values are shown verbatim.
func SexLabel(sex string) string {
	if strings.TrimSpace(sex) == "" {
		return "Not specified"
	}
	return label(sexLabels, sex)
}

// LabResultLabel renders a maternal result; anything other than positive or
// negative reads as not done.
func LabResultLabel(r LabResult) string {
	switch LabResult(strings.ToLower(string(r))) {
	case ResultPositive:
		return "Positive"
	case ResultNegative:
		return "Negative"
	}
	return "Not done"
}

func label(labels map[string]string, v string) string {
	if strings.TrimSpace(v) == "" {
		return clinicaldate.Placeholder
	}
	if l, ok := labels[strings.ToLower(strings.TrimSpace(v))]; ok {
		return l
	}
	return v
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return clinicaldate.Placeholder
	}
	return s
}
