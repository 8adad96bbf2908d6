package patient

import "time"

// Canonical values for fields captured through fixed choices. The fields
// themselves are free text; these are the values the intake form offers.
const (
	SexMale   = "male"
	SexFemale = "female"
	SexOther  = "other"

	DeliveryVaginal  = "vaginal"
	DeliveryCesarean = "cesarean"

	PresentationCephalic   = "cephalic"
	PresentationBreech     = "breech"
	PresentationTransverse = "transverse"

	FluidClear    = "clear"
	FluidMeconium = "meconium"
	FluidStained  = "stained"

	RuptureSpontaneous = "spontaneous"
	RuptureArtificial  = "artificial"
)

// LabResult is a tri-state maternal screening result. Empty reads as not
// done.
type LabResult string

const (
	ResultPositive LabResult = "positive"
	ResultNegative LabResult = "negative"
	ResultNotDone  LabResult = "not_done"
)

// Draft is a newborn record under construction. It never carries an id or a
// creation time; those are assigned by the Store.
type Draft struct {
	FirstName            string `json:"first_name" validate:"required"`
	LastName             string `json:"last_name" validate:"required"`
	ClinicalRecordNumber string `json:"clinical_record_number" validate:"required,max=64"`
	DocumentNumber       string `json:"document_number"`
	BraceletID           string `json:"bracelet_id"`
	Phone                string `json:"phone"`
	HealthInsurance      string `json:"health_insurance"`

	Birth     Birth      `json:"birth"`
	CareTeam  CareTeam   `json:"care_team"`
	Screening Screening  `json:"screening"`
	Discharge *Discharge `json:"discharge" validate:"omitempty"`
	Maternal  Maternal   `json:"maternal"`
}

type Birth struct {
	Date              string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time              string `json:"time" validate:"omitempty,datetime=15:04"`
	Sex               string `json:"sex"`
	Weight            string `json:"weight"`
	Length            string `json:"length"`
	HeadCircumference string `json:"head_circumference"`
	GestationalAge    string `json:"gestational_age"`
	Apgar             string `json:"apgar"`
	// DaysOfLife is the value computed when the record was saved.
	DaysOfLife      string `json:"days_of_life"`
	DeliveryMode    string `json:"delivery_mode"`
	Presentation    string `json:"presentation"`
	AmnioticFluid   string `json:"amniotic_fluid"`
	MembraneRupture string `json:"membrane_rupture"`
	Classification  string `json:"classification"`
	Origin          string `json:"origin"`
}

type CareTeam struct {
	AdmissionSector string `json:"admission_sector"`
	Obstetrician    string `json:"obstetrician"`
	Nurse           string `json:"nurse"`
	Neonatologist   string `json:"neonatologist"`
}

// Vaccination lot and date are meaningful only when Applied is set.
type Vaccination struct {
	Applied bool   `json:"applied"`
	Lot     string `json:"lot"`
	Date    string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// MetabolicScreening protocol, date and time are meaningful only when Done
// is set.
type MetabolicScreening struct {
	Done     bool   `json:"done"`
	Protocol string `json:"protocol"`
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time     string `json:"time" validate:"omitempty,datetime=15:04"`
}

type Labs struct {
	TotalBilirubin  string `json:"total_bilirubin"`
	DirectBilirubin string `json:"direct_bilirubin"`
	Hematocrit      string `json:"hematocrit"`
	Other           string `json:"other"`
}

type Screening struct {
	HepatitisB             Vaccination        `json:"hepatitis_b"`
	BCG                    Vaccination        `json:"bcg"`
	Metabolic              MetabolicScreening `json:"metabolic"`
	NewbornBloodGroup      string             `json:"newborn_blood_group"`
	MaternalBloodGroup     string             `json:"maternal_blood_group"`
	DirectAntiglobulinTest string             `json:"direct_antiglobulin_test"`
	Labs                   Labs               `json:"labs"`
}

// Discharge is nil until the newborn is discharged.
type Discharge struct {
	Date           string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time           string `json:"time" validate:"omitempty,datetime=15:04"`
	Weight         string `json:"weight"`
	ClinicalCourse string `json:"clinical_course"`
	Diagnoses      string `json:"diagnoses"`
	Instructions   string `json:"instructions"`
	Observations   string `json:"observations"`
	Nurse          string `json:"nurse"`
	Neonatologist  string `json:"neonatologist"`
}

type Maternal struct {
	History               string    `json:"history"`
	SARSCoV2              LabResult `json:"sars_cov_2" validate:"omitempty,oneof=positive negative not_done"`
	Chagas                LabResult `json:"chagas" validate:"omitempty,oneof=positive negative not_done"`
	Toxoplasmosis         LabResult `json:"toxoplasmosis" validate:"omitempty,oneof=positive negative not_done"`
	HIV                   LabResult `json:"hiv" validate:"omitempty,oneof=positive negative not_done"`
	VDRL                  LabResult `json:"vdrl" validate:"omitempty,oneof=positive negative not_done"`
	HepatitisB            LabResult `json:"hepatitis_b" validate:"omitempty,oneof=positive negative not_done"`
	GroupBStreptococcus   LabResult `json:"group_b_streptococcus" validate:"omitempty,oneof=positive negative not_done"`
	AntibioticProphylaxis string    `json:"antibiotic_prophylaxis"`
}

// PatientRecord is a persisted Draft plus the identity and provenance the
// Store assigned.
type PatientRecord struct {
	ID        int64      `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Draft
}

// FullName joins first and last name.
func (d Draft) FullName() string {
	switch {
	case d.FirstName == "":
		return d.LastName
	case d.LastName == "":
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

// Discharged reports whether discharge data has been recorded.
func (d Draft) Discharged() bool {
	return d.Discharge != nil
}
