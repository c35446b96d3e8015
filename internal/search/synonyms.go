package search

// MedicalSynonyms maps a clinical term to lay and abbreviated equivalents.
// Expansion is symmetric: a query naming a synonym also gains its key.
var MedicalSynonyms = map[string][]string{
	// Metabolic and cardiovascular
	"diabetes":       {"diabetes mellitus", "t2dm", "t1dm", "hyperglycemia"},
	"hypertension":   {"high blood pressure", "htn"},
	"heart attack":   {"myocardial infarction", "mi", "acute coronary syndrome"},
	"heart failure":  {"cardiac failure", "chf", "hfref", "hfpef"},
	"stroke":         {"cerebrovascular accident", "cva", "brain infarction"},
	"obesity":        {"overweight", "high bmi"},
	"cholesterol":    {"hyperlipidemia", "dyslipidemia", "ldl"},

	"atrial fibrillation": {"afib", "af"},

	// Oncology
	"cancer":          {"carcinoma", "neoplasm", "tumor", "malignancy", "oncology"},
	"breast cancer":   {"breast carcinoma", "breast neoplasm"},
	"lung cancer":     {"nsclc", "sclc", "lung carcinoma"},
	"leukemia":        {"aml", "cll", "acute lymphoblastic leukemia", "blood cancer"},
	"lymphoma":        {"hodgkin", "non-hodgkin", "nhl"},
	"melanoma":        {"skin cancer"},
	"prostate cancer": {"prostate carcinoma", "prostate neoplasm"},

	// Neurology and psychiatry
	"alzheimer":          {"alzheimer's disease", "dementia", "cognitive decline"},
	"parkinson":          {"parkinson's disease", "pd"},
	"multiple sclerosis": {"ms", "demyelinating disease"},
	"depression":         {"major depressive disorder", "mdd", "depressive disorder"},
	"epilepsy":           {"seizure disorder", "seizures"},
	"migraine":           {"headache"},

	// Respiratory and infectious
	"asthma":    {"reactive airway disease", "bronchial asthma"},
	"copd":      {"chronic obstructive pulmonary disease", "emphysema", "chronic bronchitis"},
	"covid":     {"covid-19", "sars-cov-2", "coronavirus"},
	"hiv":       {"human immunodeficiency virus", "aids"},
	"hepatitis": {"hbv", "hcv", "liver inflammation"},

	// Immunology and other
	"rheumatoid arthritis": {"ra", "inflammatory arthritis"},
	"psoriasis":            {"plaque psoriasis"},
	"kidney disease":       {"ckd", "renal disease", "renal failure"},
	"crohn":                {"crohn's disease", "inflammatory bowel disease", "ibd"},

	// Interventions
	"chemotherapy":  {"chemo", "cytotoxic therapy"},
	"immunotherapy": {"checkpoint inhibitor", "pd-1", "pd-l1", "car-t"},
	"vaccine":       {"vaccination", "immunization"},
	"placebo":       {"sham", "dummy treatment"},
	"surgery":       {"surgical", "operation", "resection"},
	"radiotherapy":  {"radiation therapy", "radiation"},
	"insulin":       {"insulin therapy", "basal insulin"},
}
