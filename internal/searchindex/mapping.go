package searchindex

// indexMapping is the fixed index bootstrap body: language-specific
// full-text sub-fields on the review texts, a copy_to aggregate for
// global search, lowercased diacritics-folded keywords for exact matches
// on country/language, and typed fields for rating and dates.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "normalizer": {
        "lc_ascii": {
          "type": "custom",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "titre_avis": {
        "type": "text",
        "fields": {
          "fr": {"type": "text", "analyzer": "french"},
          "es": {"type": "text", "analyzer": "spanish"},
          "it": {"type": "text", "analyzer": "italian"}
        },
        "copy_to": ["fulltext"]
      },
      "contenu_texte": {
        "type": "text",
        "fields": {
          "fr": {"type": "text", "analyzer": "french"},
          "es": {"type": "text", "analyzer": "spanish"},
          "it": {"type": "text", "analyzer": "italian"}
        },
        "copy_to": ["fulltext"]
      },
      "texte_entreprise": {
        "type": "text",
        "fields": {
          "fr": {"type": "text", "analyzer": "french"},
          "es": {"type": "text", "analyzer": "spanish"},
          "it": {"type": "text", "analyzer": "italian"}
        }
      },
      "fulltext": {
        "type": "text",
        "fields": {
          "fr": {"type": "text", "analyzer": "french"},
          "es": {"type": "text", "analyzer": "spanish"},
          "it": {"type": "text", "analyzer": "italian"}
        }
      },
      "nombre_etoile": {"type": "integer"},
      "date_avis": {"type": "date"},
      "date_reponse_entreprise": {"type": "date"},
      "pays": {"type": "keyword", "normalizer": "lc_ascii"},
      "langue": {"type": "keyword", "normalizer": "lc_ascii"},
      "reponse_entreprise": {"type": "boolean"}
    }
  }
}`
