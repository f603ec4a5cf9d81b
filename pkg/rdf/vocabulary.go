package rdf

// Namespaces used in provenance graphs.
const (
	NamespaceRDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NamespaceXSD     = "http://www.w3.org/2001/XMLSchema#"
	NamespaceDCTerms = "http://purl.org/dc/terms/"
	NamespaceOWL     = "http://www.w3.org/2002/07/owl#"
	NamespacePROV    = "http://www.w3.org/ns/prov#"
	NamespaceRPUBL   = "http://rinfo.lagrummet.se/ns/2008/11/rinfo/publ#"
	NamespaceRINFOEX = "http://lagen.nu/terms#"
)

// Datatypes.
const (
	XSDDate     = NamespaceXSD + "date"
	XSDDateTime = NamespaceXSD + "dateTime"
)

// Predicates and classes.
const (
	RDFType = NamespaceRDF + "type"

	DCTermsIdentifier = NamespaceDCTerms + "identifier"
	DCTermsTitle      = NamespaceDCTerms + "title"
	DCTermsIssued     = NamespaceDCTerms + "issued"
	DCTermsPublisher  = NamespaceDCTerms + "publisher"

	OWLSameAs = NamespaceOWL + "sameAs"

	PROVWasGeneratedBy = NamespacePROV + "wasGeneratedBy"

	RPUBLKonsolideradGrundforfattning = NamespaceRPUBL + "KonsolideradGrundforfattning"
	RPUBLKonsoliderar                 = NamespaceRPUBL + "konsoliderar"
	RPUBLKonsolideringsunderlag       = NamespaceRPUBL + "konsolideringsunderlag"
	RPUBLArsutgava                    = NamespaceRPUBL + "arsutgava"
	RPUBLLopnummer                    = NamespaceRPUBL + "lopnummer"

	RINFOEXSenastHamtad       = NamespaceRINFOEX + "senastHamtad"
	RINFOEXSenastKontrollerad = NamespaceRINFOEX + "senastKontrollerad"
	RINFOEXIssuedMethod       = NamespaceRINFOEX + "utfardandedatumMetod"
	RINFOEXTextUnavailable    = NamespaceRINFOEX + "lagtextSaknas"
)
