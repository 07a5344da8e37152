package kmsg

import "github.com/wireproto/kgo/kbin"

// ConfigResource identifies one resource (a topic, a broker, ...) whose
// configuration is being described.
type ConfigResource struct {
	// ResourceType is the Kafka ConfigResource type: 2 = topic, 4 =
	// broker, 8 = broker logger.
	ResourceType int8
	ResourceName string
	// ConfigNames, if nil, asks for every known config on the resource;
	// an empty (non-nil) slice is the compact-array convention's
	// "explicitly no names", which the broker treats the same as nil
	// for this API.
	ConfigNames []string
}

// DescribeConfigsRequest (key 32) retrieves resource configuration,
// including synonym-resolution detail. Chosen specifically (over
// Produce/Fetch) to exercise an admin-describe API whose body, not just
// its header, uses tagged fields throughout. Version 4 is flexible.
type DescribeConfigsRequest struct {
	Resources                  []ConfigResource
	IncludeSynonyms            bool
	IncludeDocumentation       bool

	// version defaults to 4 (this codec's only wire form); see
	// ProduceRequest.SetVersion's doc comment.
	version    int16
	versionSet bool
}

func (r *DescribeConfigsRequest) Descriptor() Descriptor {
	version := int16(4)
	if r.versionSet {
		version = r.version
	}
	return Descriptor{
		ApiKey:                     32,
		ApiVersion:                 version,
		RequestHeaderTaggedFields:  true,
		ResponseHeaderTaggedFields: true,
	}
}

// MaxVersion is 4, the only DescribeConfigs version this client encodes.
func (r *DescribeConfigsRequest) MaxVersion() int16 { return 4 }

// SetVersion records the negotiated version; see ProduceRequest.SetVersion.
func (r *DescribeConfigsRequest) SetVersion(v int16) { r.version, r.versionSet = v, true }

func (r *DescribeConfigsRequest) AppendTo(w *kbin.Writer) {
	w.AppendArrayLen(len(r.Resources), true)
	for _, res := range r.Resources {
		w.AppendInt8(res.ResourceType)
		w.AppendString(res.ResourceName, true)
		w.AppendArrayLen(len(res.ConfigNames), true)
		for _, name := range res.ConfigNames {
			w.AppendString(name, true)
		}
		w.AppendTaggedFields()
	}
	w.AppendBool(r.IncludeSynonyms)
	w.AppendBool(r.IncludeDocumentation)
	w.AppendTaggedFields()
}

func (r *DescribeConfigsRequest) ResponseKind() Response { return &DescribeConfigsResponse{} }

// ConfigSynonym is one fallback source for a config entry's effective
// value.
type ConfigSynonym struct {
	Name   string
	Value  *string
	Source int8
}

// ConfigEntry is one configuration key/value pair within a
// DescribeConfigsResult.
type ConfigEntry struct {
	Name          string
	Value         *string
	ReadOnly      bool
	IsDefault     bool
	Sensitive     bool
	Source        int8
	Synonyms      []ConfigSynonym
	ConfigType    int8
	Documentation *string
}

// DescribeConfigsResult is one resource's worth of ConfigEntries within a
// DescribeConfigsResponse.
type DescribeConfigsResult struct {
	ErrorCode    int16
	ErrorMessage *string
	ResourceType int8
	ResourceName string
	Configs      []ConfigEntry
}

// DescribeConfigsResponse is the broker's per-resource configuration
// result of a DescribeConfigsRequest.
type DescribeConfigsResponse struct {
	ThrottleMillis int32
	Results        []DescribeConfigsResult
}

func (r *DescribeConfigsResponse) ReadFrom(rd *kbin.Reader) error {
	r.ThrottleMillis = rd.Int32()

	n := rd.ArrayLen(true)
	r.Results = make([]DescribeConfigsResult, n)
	for i := range r.Results {
		res := &r.Results[i]
		res.ErrorCode = rd.Int16()
		if msg, ok := rd.NullableString(true); ok {
			res.ErrorMessage = &msg
		}
		res.ResourceType = rd.Int8()
		res.ResourceName = rd.String(true)

		nc := rd.ArrayLen(true)
		res.Configs = make([]ConfigEntry, nc)
		for j := range res.Configs {
			c := &res.Configs[j]
			c.Name = rd.String(true)
			if v, ok := rd.NullableString(true); ok {
				c.Value = &v
			}
			c.ReadOnly = rd.Bool()
			c.IsDefault = rd.Bool()
			c.Sensitive = rd.Bool()
			c.Source = rd.Int8()

			ns := rd.ArrayLen(true)
			c.Synonyms = make([]ConfigSynonym, ns)
			for k := range c.Synonyms {
				s := &c.Synonyms[k]
				s.Name = rd.String(true)
				if v, ok := rd.NullableString(true); ok {
					s.Value = &v
				}
				s.Source = rd.Int8()
				SkipTags(rd)
			}

			c.ConfigType = rd.Int8()
			if doc, ok := rd.NullableString(true); ok {
				c.Documentation = &doc
			}
			SkipTags(rd)
		}
		SkipTags(rd)
	}
	SkipTags(rd)
	return rd.Err()
}
