package graph

// Asset is a host known by a stable asset id.
type Asset struct {
	key      NodeKey
	assetID  string
	hostname string
	lastSeen uint64
}

func (a *Asset) Kind() Kind        { return KindAsset }
func (a *Asset) Key() NodeKey      { return a.key }
func (a *Asset) State() string     { return "" }
func (a *Asset) Timestamp() uint64 { return a.lastSeen }
func (a *Asset) AssetID() string   { return a.assetID }
func (a *Asset) Hostname() string  { return a.hostname }

func (a *Asset) Properties() map[string]any {
	props := map[string]any{"asset_id": a.assetID, "hostname": a.hostname}
	if a.lastSeen != 0 {
		props["last_seen_timestamp"] = a.lastSeen
	}
	return props
}

type AssetBuilder struct {
	a   Asset
	set fieldSet
}

func NewAssetBuilder() *AssetBuilder { return &AssetBuilder{} }

func (b *AssetBuilder) AssetID(v string) *AssetBuilder {
	b.a.assetID = v
	b.set |= fAssetID
	return b
}

func (b *AssetBuilder) Hostname(v string) *AssetBuilder {
	b.a.hostname = v
	b.set |= fHostname
	return b
}

func (b *AssetBuilder) LastSeenTimestamp(v uint64) *AssetBuilder {
	b.a.lastSeen = v
	b.set |= fLastSeenTS
	return b
}

func (b *AssetBuilder) Build() (*Asset, error) {
	c := checklist{kind: KindAsset}
	c.require("asset_id", b.set.has(fAssetID) && b.a.assetID != "")
	c.require("hostname", b.set.has(fHostname) && b.a.hostname != "")
	if err := c.err(); err != nil {
		return nil, err
	}

	a := b.a
	a.key = deriveKey(KindAsset, str("asset_id", a.assetID))
	return &a, nil
}
