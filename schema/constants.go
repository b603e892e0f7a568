package schema

// Custom string types for type safety.
type (
	// ReportFormat represents a report output format.
	ReportFormat string

	// CounterEntity represents the kind of item a coverage counter tallies.
	CounterEntity string

	// LineStatus represents the coverage state of a single source line.
	LineStatus string

	// DatabaseBackend represents the database backend for coverage history.
	DatabaseBackend string

	// RuleElement represents the node level a coverage rule applies to.
	RuleElement string

	// RuleValue represents which counter value a coverage limit checks.
	RuleValue string
)

// All report formats supported.
const (
	HTMLFormat ReportFormat = "html"
	XMLFormat  ReportFormat = "xml"
	CSVFormat  ReportFormat = "csv"
)

// All counter entities, in report order.
const (
	InstructionCounter CounterEntity = "INSTRUCTION"
	BranchCounter      CounterEntity = "BRANCH"
	LineCounter        CounterEntity = "LINE"
	ComplexityCounter  CounterEntity = "COMPLEXITY"
	MethodCounter      CounterEntity = "METHOD"
	ClassCounter       CounterEntity = "CLASS"
)

// All line states.
const (
	LineEmpty         LineStatus = "empty"
	LineNotCovered    LineStatus = "nc"
	LinePartlyCovered LineStatus = "pc"
	LineFullyCovered  LineStatus = "fc"
)

// All history backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite"
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none" // default
)

// All rule elements supported.
const (
	BundleElement     RuleElement = "BUNDLE"
	PackageElement    RuleElement = "PACKAGE"
	ClassElement      RuleElement = "CLASS"
	SourceFileElement RuleElement = "SOURCEFILE"
	MethodElement     RuleElement = "METHOD"
)

// All rule values supported.
const (
	TotalCountValue   RuleValue = "TOTALCOUNT"
	CoveredCountValue RuleValue = "COVEREDCOUNT"
	MissedCountValue  RuleValue = "MISSEDCOUNT"
	CoveredRatioValue RuleValue = "COVEREDRATIO"
	MissedRatioValue  RuleValue = "MISSEDRATIO"
)

// AllReportFormats lists formats in the order they are emitted by default.
var AllReportFormats = []ReportFormat{HTMLFormat, XMLFormat, CSVFormat}

// AllCounterEntities lists counter entities in report order.
var AllCounterEntities = []CounterEntity{
	InstructionCounter, BranchCounter, LineCounter, ComplexityCounter, MethodCounter, ClassCounter,
}

// ValidReportFormats lists all valid report formats.
var ValidReportFormats = map[ReportFormat]struct{}{
	HTMLFormat: {},
	XMLFormat:  {},
	CSVFormat:  {},
}

// ValidDatabaseBackends lists all valid history backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// ValidCounterEntities lists all valid counter entities.
var ValidCounterEntities = map[CounterEntity]struct{}{
	InstructionCounter: {},
	BranchCounter:      {},
	LineCounter:        {},
	ComplexityCounter:  {},
	MethodCounter:      {},
	ClassCounter:       {},
}

// ValidRuleElements lists all valid rule elements.
var ValidRuleElements = map[RuleElement]struct{}{
	BundleElement:     {},
	PackageElement:    {},
	ClassElement:      {},
	SourceFileElement: {},
	MethodElement:     {},
}

// ValidRuleValues lists all valid rule values.
var ValidRuleValues = map[RuleValue]struct{}{
	TotalCountValue:   {},
	CoveredCountValue: {},
	MissedCountValue:  {},
	CoveredRatioValue: {},
	MissedRatioValue:  {},
}
