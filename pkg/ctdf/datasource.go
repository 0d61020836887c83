package ctdf

type DataSource struct {
	OriginalFormat string `groups:"internal" json:"original_format" bson:"originalformat"`
	Provider       string `groups:"internal" json:"provider" bson:"provider"`
	Dataset        string `groups:"internal" json:"dataset" bson:"dataset"`
	Identifier     string `groups:"internal" json:"identifier" bson:"identifier"`
}
