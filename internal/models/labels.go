package models

// ImageTypeLabels lists the image type labels used by the dataset.
var ImageTypeLabels = []string{
	"ct", "mri", "x_ray", "ultrasound", "angiography", "mammography", "echocardiogram", "cholangiogram",
	"cta", "cmr", "mra", "mrcp", "spect", "pet", "scintigraphy", "tractography",
	"skin_photograph", "oral_photograph", "other_medical_photograph", "fundus_photograph", "ophtalmic_angiography", "oct",
	"pathology", "h&e", "immunostaining", "immunofluorescence", "acid_fast", "masson_trichrome", "giemsa", "papanicolaou", "gram", "fish",
	"endoscopy", "colonoscopy", "bronchoscopy", "ekg", "eeg", "chart",
}

// AnatomicalRegionLabels lists the anatomical region labels.
var AnatomicalRegionLabels = []string{
	"head", "neck", "thorax", "abdomen", "pelvis", "upper_limb", "lower_limb", "dental_view",
}

// RegionalImageTypes are the image types for which anatomical region labels
// are assigned.
var RegionalImageTypes = []string{
	"ct", "mri", "x_ray", "ultrasound", "angiography", "cta", "mra", "spect", "pet", "scintigraphy",
}
